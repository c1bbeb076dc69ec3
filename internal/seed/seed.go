// Package seed loads demo operators and bean varieties from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"roastkit/internal/dto"
	"roastkit/internal/model"
	"roastkit/internal/service"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type User struct {
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type Variety struct {
	Name         string `yaml:"name"`
	StockGreen   int    `yaml:"stock_green"`
	StockRoasted int    `yaml:"stock_roasted"`
}

type File struct {
	Users     []User    `yaml:"users"`
	Varieties []Variety `yaml:"varieties"`
}

// Result counts what Apply created and skipped.
type Result struct {
	UsersCreated     int
	UsersSkipped     int
	VarietiesCreated int
	VarietiesSkipped int
}

// Load decodes a seed file, rejecting unknown keys.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	for i, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("seed: users[%d]: username and password are required", i)
		}
		switch u.Role {
		case "":
			f.Users[i].Role = model.RoleRoaster
		case model.RoleAdmin, model.RoleRoaster:
		default:
			return nil, fmt.Errorf("seed: users[%d]: unknown role %q", i, u.Role)
		}
	}
	for i, v := range f.Varieties {
		if v.Name == "" {
			return nil, fmt.Errorf("seed: varieties[%d]: name is required", i)
		}
	}
	return &f, nil
}

// Apply creates the users and varieties. Existing usernames and variety names
// are skipped so the same file can be applied twice.
func Apply(ctx context.Context, f *File, auth service.AuthService, inventory service.InventoryService) (Result, error) {
	var res Result
	for _, u := range f.Users {
		fullName := u.FullName
		if fullName == "" {
			fullName = u.Username
		}
		_, err := auth.CreateUser(ctx, dto.CreateUserRequest{
			Username: u.Username,
			FullName: fullName,
			Password: u.Password,
			Role:     u.Role,
		})
		if errors.Is(err, service.ErrUsernameTaken) {
			res.UsersSkipped++
			log.Info().Str("username", u.Username).Msg("seed: user exists, skipped")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed: user %s: %w", u.Username, err)
		}
		res.UsersCreated++
	}

	existing, err := inventory.ListVarieties(ctx)
	if err != nil {
		return res, fmt.Errorf("seed: list varieties: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, v := range existing {
		known[v.Name] = true
	}

	for _, v := range f.Varieties {
		if known[v.Name] {
			res.VarietiesSkipped++
			log.Info().Str("name", v.Name).Msg("seed: variety exists, skipped")
			continue
		}
		_, err := inventory.CreateVariety(ctx, dto.CreateVarietyRequest{
			Name:         v.Name,
			StockGreen:   v.StockGreen,
			StockRoasted: v.StockRoasted,
		}, nil)
		if err != nil {
			return res, fmt.Errorf("seed: variety %s: %w", v.Name, err)
		}
		known[v.Name] = true
		res.VarietiesCreated++
	}
	return res, nil
}
