package services

import (
	"context"
	"fmt"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/platform/authcache"
)

// cachedAuthorizer resolves approver roles through the role repository,
// memoizing role sets per user and project.
type cachedAuthorizer struct {
	roleRepo portsrepo.RoleRepositoryFacade
	cache    *authcache.Cache
}

// NewAuthorizer creates a caching authorizer. The cache is shared with
// whoever mutates role assignments, so invalidation hooks reach it.
func NewAuthorizer(roleRepo portsrepo.RoleRepositoryFacade, cache *authcache.Cache) portssvc.AuthorizerSvc {
	return &cachedAuthorizer{roleRepo: roleRepo, cache: cache}
}

var _ portssvc.AuthorizerSvc = (*cachedAuthorizer)(nil)

func (a *cachedAuthorizer) RolesFor(ctx context.Context, userID, projectID string) ([]domain.ApproverRole, error) {
	if roles, ok := a.cache.Get(userID, projectID); ok {
		return roles, nil
	}
	roles, err := a.roleRepo.FindProjectRoles(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	a.cache.Put(userID, projectID, roles)
	return roles, nil
}

func (a *cachedAuthorizer) Authorize(ctx context.Context, userID, projectID string, role domain.ApproverRole) error {
	roles, err := a.RolesFor(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !hasRole(roles, role) {
		return fmt.Errorf("%w: user %s lacks %s in project %s", ErrRoleNotHeld, userID, role, projectID)
	}
	return nil
}
