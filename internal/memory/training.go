package memory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lunafall/companion/internal/profile"
)

// TrainingInput is the payload for an explicit training-example append.
type TrainingInput struct {
	Mode      string
	Source    string
	Accepted  bool
	User      string
	Assistant string
}

// AddTrainingExample appends a curated example. Training examples never decay;
// they are only removed by explicit deletion.
func (l *Lifecycle) AddTrainingExample(acct *profile.Account, in TrainingInput) (profile.TrainingExample, error) {
	user := strings.TrimSpace(in.User)
	assistant := strings.TrimSpace(in.Assistant)
	if user == "" || assistant == "" {
		return profile.TrainingExample{}, fmt.Errorf("%w: user and assistant are required", ErrValidation)
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "manual"
	}

	ex := profile.TrainingExample{
		ID:        uuid.NewString(),
		Mode:      profile.NormalizeMode(in.Mode),
		Source:    source,
		Accepted:  in.Accepted,
		User:      user,
		Assistant: assistant,
		At:        l.now(),
	}
	acct.TrainingExamples = append(acct.TrainingExamples, ex)
	return ex, nil
}
