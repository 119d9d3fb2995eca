package extraction

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer turns an HTML document into one PNG per visual page, keyed from 1
type Renderer interface {
	Render(ctx context.Context, html []byte) (map[int][]byte, error)
}

// ChromeRenderer renders HTML in headless Chrome and slices the full-page
// screenshot into fixed-size pages. Requires Chrome/Chromium on the host.
type ChromeRenderer struct {
	PageWidth  int
	PageHeight int
	MaxPages   int
	Timeout    time.Duration
}

// NewChromeRenderer returns a renderer with 1200x1600 pages
func NewChromeRenderer() *ChromeRenderer {
	return &ChromeRenderer{
		PageWidth:  1200,
		PageHeight: 1600,
		MaxPages:   200,
		Timeout:    60 * time.Second,
	}
}

// Render loads the document into a blank tab and captures each page-sized slice
func (r *ChromeRenderer) Render(ctx context.Context, html []byte) (map[int][]byte, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, r.Timeout)
	defer cancel()

	var height float64
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(r.PageWidth), int64(r.PageHeight)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(`Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`, &height),
	)
	if err != nil {
		return nil, fmt.Errorf("browser rendering failed: %w", err)
	}

	pages := int(math.Ceil(height / float64(r.PageHeight)))
	if pages < 1 {
		pages = 1
	}
	if r.MaxPages > 0 && pages > r.MaxPages {
		pages = r.MaxPages
	}

	images := make(map[int][]byte, pages)
	for i := 0; i < pages; i++ {
		clip := &page.Viewport{
			X:      0,
			Y:      float64(i * r.PageHeight),
			Width:  float64(r.PageWidth),
			Height: float64(r.PageHeight),
			Scale:  1,
		}
		var buf []byte
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(clip).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("screenshot of page %d failed: %w", i+1, err)
		}
		images[i+1] = buf
	}
	return images, nil
}
