package hostlink

import (
	"context"
	"time"

	"furnacebot.ai/internal/action"
	"furnacebot.ai/internal/geom"
	"furnacebot.ai/internal/protocol"
)

func (c *Client) NearestTag(ctx context.Context, color action.Color) (geom.Rect, bool, error) {
	var res protocol.FoundResult
	if err := c.Call(ctx, protocol.MethodNearestTag, protocol.NearestTagParams{Color: string(color)}, &res); err != nil {
		return geom.Rect{}, false, err
	}
	return res.Rect, res.Found, nil
}

func (c *Client) HoverText(ctx context.Context, contains string, color action.Color) (bool, error) {
	var res protocol.HoverTextResult
	err := c.Call(ctx, protocol.MethodHoverText, protocol.HoverTextParams{Contains: contains, Color: string(color)}, &res)
	return res.Match, err
}

func (c *Client) FindImage(ctx context.Context, path string, region geom.Rect, confidence float64) (geom.Rect, bool, error) {
	var res protocol.FoundResult
	p := protocol.FindImageParams{Path: path, Region: region, Confidence: confidence}
	if err := c.Call(ctx, protocol.MethodFindImage, p, &res); err != nil {
		return geom.Rect{}, false, err
	}
	return res.Rect, res.Found, nil
}

func (c *Client) MoveTo(ctx context.Context, p geom.Point) error {
	return c.Call(ctx, protocol.MethodMoveTo, protocol.MoveToParams{Point: p}, nil)
}

func (c *Client) Click(ctx context.Context) error {
	return c.Call(ctx, protocol.MethodClick, nil, nil)
}

func (c *Client) Rotate(ctx context.Context, degrees int) error {
	return c.Call(ctx, protocol.MethodRotateCamera, protocol.RotateCameraParams{Degrees: degrees}, nil)
}

// Lifecycle calls log failures instead of returning them.

func (c *Client) LogMessage(text string) {
	c.notify(protocol.MethodLog, protocol.LogParams{Text: text})
}

func (c *Client) UpdateProgress(fraction float64) {
	c.notify(protocol.MethodProgress, protocol.ProgressParams{Fraction: fraction})
}

func (c *Client) Logout() { c.notify(protocol.MethodLogout, nil) }

func (c *Client) Stop() { c.notify(protocol.MethodStop, nil) }

func (c *Client) notify(method string, params any) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout+time.Second)
	defer cancel()
	if err := c.Call(ctx, method, params, nil); err != nil {
		c.cfg.Logger.Printf("host %s failed: %v", method, err)
	}
}
