package blockdev

//go:generate mockgen -destination=mock_blockdev.go -package=blockdev github.com/carverauto/usbcopier/pkg/blockdev Provisioner,Runner

import "context"

// Provisioner is the block-device capability a worker needs.
type Provisioner interface {
	DeviceSize(ctx context.Context, device string) (int64, error)
	Wipe(ctx context.Context, device string) error
	Partition(ctx context.Context, device string, geometry Geometry) error
	Format(ctx context.Context, partition, label string) error
	Mount(ctx context.Context, partition, mountPoint string) error
	Unmount(ctx context.Context, mountPoint string) error
	IsMounted(ctx context.Context, mountPoint string) (bool, error)
}

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}
