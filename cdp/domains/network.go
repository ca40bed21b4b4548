package domains

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	cdpnetwork "github.com/chromedp/cdproto/network"
)

// Network is the CDP Network domain.
type Network interface {
	Enable(ctx context.Context) error
	EmulateNetworkConditions(ctx context.Context, offline bool, latency, download, upload float64) error
}

var _ Network = &network{}

type network struct {
	exec cdp.Executor
}

// NewNetwork returns a new CDP Network domain wrapper.
func NewNetwork(exec cdp.Executor) Network {
	return &network{exec}
}

func (n *network) Enable(ctx context.Context) error {
	action := cdpnetwork.Enable()
	return action.Do(cdp.WithExecutor(ctx, n.exec))
}

// EmulateNetworkConditions throttles the target. Latency is in
// milliseconds and throughputs in bytes per second, -1 disabling them.
func (n *network) EmulateNetworkConditions(
	ctx context.Context, offline bool, latency, download, upload float64,
) error {
	action := cdpnetwork.EmulateNetworkConditions(offline, latency, download, upload)
	return action.Do(cdp.WithExecutor(ctx, n.exec))
}
