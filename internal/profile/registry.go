package profile

import (
	"fmt"

	"github.com/lunafall/companion/internal/store"
)

// Registry loads and saves the account document through the store. Profiles
// are created lazily on first access; there is no explicit create operation.
type Registry struct {
	store              *store.Store
	key                string
	defaultCharacterID string
}

func NewRegistry(st *store.Store, key, defaultCharacterID string) *Registry {
	return &Registry{store: st, key: key, defaultCharacterID: defaultCharacterID}
}

// Load reads the full document, creating an empty one when the key is absent
// and migrating older schema versions forward.
func (r *Registry) Load() (*Document, error) {
	doc := &Document{}
	err := r.store.Read(r.key, doc, func() {
		doc.Version = SchemaVersion
		doc.Accounts = make(map[string]*Account)
	})
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	migrate(doc)
	return doc, nil
}

// Save commits the full document in one write.
func (r *Registry) Save(doc *Document) error {
	doc.Version = SchemaVersion
	if err := r.store.Write(r.key, doc); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	return nil
}

// Account returns the account for id, creating it with defaults when unknown.
func (r *Registry) Account(doc *Document, id string) *Account {
	if doc.Accounts == nil {
		doc.Accounts = make(map[string]*Account)
	}
	acct, ok := doc.Accounts[id]
	if !ok || acct == nil {
		acct = NewAccount(r.defaultCharacterID)
		doc.Accounts[id] = acct
	}
	return acct
}

// Reset replaces the account with a fresh one and persists the change.
func (r *Registry) Reset(id string) (*Account, error) {
	doc, err := r.Load()
	if err != nil {
		return nil, err
	}
	acct := NewAccount(r.defaultCharacterID)
	doc.Accounts[id] = acct
	if err := r.Save(doc); err != nil {
		return nil, err
	}
	return acct, nil
}

// ResetAll drops the whole document from the store.
func (r *Registry) ResetAll() error {
	if err := r.store.Delete(r.key); err != nil {
		return fmt.Errorf("reset accounts: %w", err)
	}
	return nil
}

// migrate brings older documents up to the current schema. Version 1 stored
// profiles without mode extras or settings overrides; filling zero values is
// enough, so migration only has to normalize containers.
func migrate(doc *Document) {
	if doc.Accounts == nil {
		doc.Accounts = make(map[string]*Account)
	}
	for _, acct := range doc.Accounts {
		if acct == nil {
			continue
		}
		if acct.Profile.Mode == "" {
			acct.Profile.Mode = ModeNormal
		}
		if acct.Profile.ModeExtras.UncensoredInstructions == nil {
			acct.Profile.ModeExtras.UncensoredInstructions = []string{}
		}
		if acct.Profile.ModeExtras.UncensoredMemories == nil {
			acct.Profile.ModeExtras.UncensoredMemories = []string{}
		}
	}
	doc.Version = SchemaVersion
}
