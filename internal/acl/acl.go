// Package acl implements the ACL user data model: bcrypt-hashed
// credentials and optional rules text, stored as
// pack(ACLUser, username) -> hash 0x0A rules.
package acl

import (
	"bytes"
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/cuemby/warren/internal/log"
	"github.com/cuemby/warren/internal/store"
	"github.com/cuemby/warren/internal/tuple"
)

// ErrNoSuchUser is returned by GetUser when the named user has no record.
// DelUser on an absent user succeeds, and Verify reports false with a nil
// error.
var ErrNoSuchUser = errors.New("acl: no such user")

const recordSeparator = '\n'

// User is a decoded ACL user record.
type User struct {
	Name  string
	Hash  string
	Rules string
}

// Model implements set_user/get_user/del_user/list_users/verify.
type Model struct {
	st *store.Store
}

// New returns an ACL model over st.
func New(st *store.Store) *Model {
	return &Model{st: st}
}

// SetUser stores name's credential and rules. If password begins with
// "$2" it is treated as a precomputed bcrypt hash and stored verbatim;
// otherwise it is hashed with bcrypt's default cost. Every stored
// credential therefore begins with "$2"; SetUser never stores a literal,
// plaintext-comparable credential.
func (m *Model) SetUser(ctx context.Context, name, password, rules string) error {
	var hash string
	if len(password) >= 2 && password[:2] == "$2" {
		hash = password
	} else {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash = string(hashed)
	}
	if len(hash) < 2 || hash[:2] != "$2" {
		log.WithComponent("acl").Warn().Str("user", name).
			Msg("storing non-bcrypt credential verbatim")
	}

	record := append([]byte(hash), recordSeparator)
	record = append(record, []byte(rules)...)
	key := tuple.Pack(tuple.ACLUser, []byte(name))
	return m.st.Update(ctx, func(tx store.Txn) error {
		return tx.Set(key, record)
	})
}

// GetUser reads and decodes name's record.
func (m *Model) GetUser(ctx context.Context, name string) (User, error) {
	key := tuple.Pack(tuple.ACLUser, []byte(name))
	var record []byte
	err := m.st.View(ctx, func(tx store.Txn) error {
		v, err := tx.Get(key)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoSuchUser
		}
		if err != nil {
			return err
		}
		record = v
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return decodeRecord(name, record), nil
}

// DelUser clears name's record.
func (m *Model) DelUser(ctx context.Context, name string) error {
	key := tuple.Pack(tuple.ACLUser, []byte(name))
	return m.st.Update(ctx, func(tx store.Txn) error {
		return tx.Clear(key)
	})
}

// ListUsers range-scans the ACL subspace and returns every username.
func (m *Model) ListUsers(ctx context.Context) ([]string, error) {
	start, end := tuple.NamespaceRange(tuple.ACLUser)
	var names []string
	err := m.st.View(ctx, func(tx store.Txn) error {
		for {
			page, err := tx.Scan(start, end, 20)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				return nil
			}
			for _, kv := range page {
				name, ok := decodeUsername(kv.Key)
				if ok {
					names = append(names, name)
				}
			}
			if len(page) < 20 {
				return nil
			}
			start = append(append([]byte{}, page[len(page)-1].Key...), 0x00)
		}
	})
	return names, err
}

// Verify checks password against name's stored credential: bcrypt-verify
// if the hash begins with "$2", otherwise a byte-equal comparison.
func (m *Model) Verify(ctx context.Context, name, password string) (bool, error) {
	user, err := m.GetUser(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNoSuchUser) {
			return false, nil
		}
		return false, err
	}
	if len(user.Hash) >= 2 && user.Hash[:2] == "$2" {
		return bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)) == nil, nil
	}
	return user.Hash == password, nil
}

func decodeRecord(name string, record []byte) User {
	idx := bytes.IndexByte(record, recordSeparator)
	if idx < 0 {
		return User{Name: name, Hash: string(record)}
	}
	return User{Name: name, Hash: string(record[:idx]), Rules: string(record[idx+1:])}
}

// decodeUsername extracts the username from a tuple-packed ACLUser key
// (namespace byte + 4-byte length prefix + username bytes).
func decodeUsername(key []byte) (string, bool) {
	if len(key) < 5 {
		return "", false
	}
	n := int(key[1])<<24 | int(key[2])<<16 | int(key[3])<<8 | int(key[4])
	if len(key) < 5+n {
		return "", false
	}
	return string(key[5 : 5+n]), true
}
