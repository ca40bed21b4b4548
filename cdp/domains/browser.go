package domains

import (
	"context"
	"fmt"

	cdpb "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
)

// Version describes the browser at the other end of a CDP connection.
type Version struct {
	Protocol  string
	Product   string
	Revision  string
	UserAgent string
	JS        string
}

// Browser is the subset of the CDP Browser domain the throttler uses.
type Browser interface {
	Version(ctx context.Context) (Version, error)
}

type browser struct {
	exec cdp.Executor
}

// NewBrowser wraps exec with the Browser domain.
func NewBrowser(exec cdp.Executor) Browser {
	return &browser{exec}
}

func (b *browser) Version(ctx context.Context) (Version, error) {
	protocol, product, revision, ua, js, err := cdpb.GetVersion().Do(cdp.WithExecutor(ctx, b.exec))
	if err != nil {
		return Version{}, fmt.Errorf("getting browser version: %w", err)
	}

	return Version{
		Protocol:  protocol,
		Product:   product,
		Revision:  revision,
		UserAgent: ua,
		JS:        js,
	}, nil
}
