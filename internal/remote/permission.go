package remote

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"context"
)

const permissionCheckPath = "/permissions/check"

// PermissionCheckerInterface answers whether caller, acting as member within
// group, may perform action on attendee resources. It returns the caller on
// success.
type PermissionCheckerInterface interface {
	Check(ctx context.Context, caller, group, member models.Principal, action models.PermissionAction) (models.Principal, error)
}

type PermissionChecker struct {
	client ClientInterface
	base   models.Principal
}

// NewPermissionChecker uses the gateway at remote.permissionUrl. Without one
// configured, members may only act on their own behalf.
func NewPermissionChecker(conf *structures.Config, client ClientInterface, logger providers.Logger) PermissionCheckerInterface {
	if conf.Remote.PermissionURL == "" {
		logger.Warnf(providers.TypeApp, "No permission gateway configured, only self-service writes are allowed")
		return &selfOnlyChecker{}
	}
	return &PermissionChecker{client: client, base: models.Principal(conf.Remote.PermissionURL)}
}

func (p *PermissionChecker) Check(ctx context.Context, caller, group, member models.Principal, action models.PermissionAction) (models.Principal, error) {
	req := models.PermissionRequest{
		Caller:   caller,
		Group:    group,
		Member:   member,
		Action:   action,
		Resource: models.ResourceAttendee,
	}
	var resp models.PermissionResponse
	if err := p.client.PostJSON(ctx, p.base, permissionCheckPath, req, &resp); err != nil {
		return "", models.WrapApiError(models.KindUnauthorized, models.TagNoPermission, "permission.Check", err)
	}
	if resp.Principal != caller {
		return "", models.NewApiError(models.KindUnauthorized, models.TagPrincipalMismatch, "Principal mismatch", "permission.Check", string(caller), string(member))
	}
	if !resp.Allowed {
		return "", models.NewApiError(models.KindUnauthorized, models.TagNoPermission, "No permission", "permission.Check", string(caller), string(action))
	}
	return caller, nil
}

type selfOnlyChecker struct{}

func (s *selfOnlyChecker) Check(_ context.Context, caller, _, member models.Principal, _ models.PermissionAction) (models.Principal, error) {
	if caller != member {
		return "", models.NewApiError(models.KindUnauthorized, models.TagPrincipalMismatch, "Principal mismatch", "permission.Check", string(caller), string(member))
	}
	return caller, nil
}
