package providers

import (
	"attendees/internal/structures"
	"fmt"
	"net/url"

	"github.com/gookit/validate"
)

type CnfValidatorInterface interface {
	Validate() error
}

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) CnfValidatorInterface {
	return &CnfValidator{conf: conf}
}

func (c *CnfValidator) Validate() error {
	v := validate.Struct(c.conf)
	if !v.Validate() {
		return v.Errors
	}
	return c.validateRole()
}

// validateRole checks the settings that only one of the two roles needs.
func (c *CnfValidator) validateRole() error {
	switch c.conf.Node.Role {
	case structures.RoleCoordinator:
		for _, host := range c.conf.Coordinator.ShardHosts {
			if _, err := url.ParseRequestURI(host); err != nil {
				return fmt.Errorf("coordinator.shardHosts: invalid url %q: %w", host, err)
			}
		}
	case structures.RoleShard:
		if c.conf.Shard.Parent != "" {
			if _, err := url.ParseRequestURI(c.conf.Shard.Parent); err != nil {
				return fmt.Errorf("shard.parent: invalid url %q: %w", c.conf.Shard.Parent, err)
			}
		}
	}
	return nil
}
