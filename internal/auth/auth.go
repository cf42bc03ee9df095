// Package auth manages user accounts and the identity tokens that
// gate real-time connections. Accounts live as flat metadata files,
// cold-loaded into memory at startup like the document directory.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

const (
	bcryptCost = 10
	tokenTTL   = 24 * time.Hour
	metaSuffix = "_meta.json"
)

// Identity is attached to a session at connection time and is
// immutable for the session's lifetime.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type userRecord struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	HashedPassword string `json:"hashed_password"`
	CreatedAt      string `json:"created_at"`
}

type tokenClaims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

type Service struct {
	usersDir string
	secret   []byte

	mu    sync.RWMutex
	users map[string]userRecord // keyed by email
}

func NewService(usersDir string, secret []byte) (*Service, error) {
	if err := os.MkdirAll(usersDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create users dir: %w", err)
	}
	return &Service{
		usersDir: usersDir,
		secret:   secret,
		users:    make(map[string]userRecord),
	}, nil
}

// Load scans the users directory once. Broken account files are
// skipped with a warning.
func (s *Service) Load() error {
	files, err := os.ReadDir(s.usersDir)
	if err != nil {
		return fmt.Errorf("unable to list users dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.usersDir, name))
		if err != nil {
			log.Printf("Skipping unreadable user file %s: %v", name, err)
			continue
		}
		var rec userRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Printf("Skipping undecodable user file %s: %v", name, err)
			continue
		}
		s.users[strings.TrimSuffix(name, metaSuffix)] = rec
	}
	log.Printf("Loaded %d users", len(s.users))
	return nil
}

// Register creates a new account and returns its identity.
func (s *Service) Register(email, username, password string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return Identity{}, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return Identity{}, err
	}

	rec := userRecord{
		ID:             newID(),
		Username:       username,
		HashedPassword: string(hashed),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Identity{}, err
	}
	if err := os.WriteFile(filepath.Join(s.usersDir, email+metaSuffix), raw, 0600); err != nil {
		return Identity{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.users[email] = rec
	return Identity{ID: rec.ID, Username: rec.Username, Email: email}, nil
}

// Authenticate checks a password against the stored hash. An unknown
// email still burns a hash so response timing does not reveal whether
// the account exists.
func (s *Service) Authenticate(email, password string) (Identity, error) {
	s.mu.RLock()
	rec, ok := s.users[email]
	s.mu.RUnlock()

	if !ok {
		bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		return Identity{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.HashedPassword), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{ID: rec.ID, Username: rec.Username, Email: email}, nil
}

// Issue signs a token carrying the identity claims.
func (s *Service) Issue(id Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID:   id.ID,
		Username: id.Username,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	return token.SignedString(s.secret)
}

// Verify validates a token and returns the identity it carries.
func (s *Service) Verify(tokenString string) (Identity, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: claims.UserID, Username: claims.Username, Email: claims.Email}, nil
}

func newID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) +
		strconv.FormatInt(rand.Int63(), 36)
}
