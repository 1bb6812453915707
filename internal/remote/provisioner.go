package remote

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"context"
	"fmt"
)

// ProvisionerInterface stands in for the host environment: it hands out
// blank shard units and installs or upgrades code on them.
type ProvisionerInterface interface {
	Create(ctx context.Context) (models.Principal, error)
	Install(ctx context.Context, shard models.Principal, image models.CodeImage, args models.InitArgs) error
	Upgrade(ctx context.Context, shard models.Principal, image models.CodeImage) error
}

// HostPoolProvisioner draws from a fixed list of pre-started shard processes.
// A host is blank while it reports installed=false.
type HostPoolProvisioner struct {
	hosts  []models.Principal
	shards ShardClientInterface
	logger providers.Logger
}

func NewHostPoolProvisioner(conf *structures.Config, shards ShardClientInterface, logger providers.Logger) ProvisionerInterface {
	hosts := make([]models.Principal, 0, len(conf.Coordinator.ShardHosts))
	for _, h := range conf.Coordinator.ShardHosts {
		hosts = append(hosts, models.Principal(h))
	}
	return &HostPoolProvisioner{hosts: hosts, shards: shards, logger: logger}
}

func (p *HostPoolProvisioner) Create(ctx context.Context) (models.Principal, error) {
	for _, host := range p.hosts {
		status, err := p.shards.Status(ctx, host)
		if err != nil {
			p.logger.Warnf(providers.TypeRemote, "Shard host %s unreachable: %s", host, err)
			continue
		}
		if !status.Installed {
			return host, nil
		}
	}
	return "", models.NewApiError(models.KindBadRequest, models.TagCanisterNotCreated,
		fmt.Sprintf("No blank shard host left out of %d", len(p.hosts)), "provisioner.Create")
}

func (p *HostPoolProvisioner) Install(ctx context.Context, shard models.Principal, image models.CodeImage, args models.InitArgs) error {
	req := models.InstallRequest{Image: image.Bytes, Version: image.Version, Args: args}
	if err := p.shards.Install(ctx, shard, req); err != nil {
		return models.WrapApiError(models.KindBadRequest, models.TagInstallFailed, "provisioner.Install", err, string(shard))
	}
	return nil
}

func (p *HostPoolProvisioner) Upgrade(ctx context.Context, shard models.Principal, image models.CodeImage) error {
	req := models.UpgradeRequest{Image: image.Bytes, Version: image.Version}
	if err := p.shards.Upgrade(ctx, shard, req); err != nil {
		return models.WrapApiError(models.KindBadRequest, models.TagUpgradeFailed, "provisioner.Upgrade", err, string(shard))
	}
	return nil
}
