package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// fetchConfigURL reads key from the JSON document at url. The first
// successful lookup is kept for the life of the definition; concurrent first
// calls share one fetch, which outlives a caller that gives up. Failures
// are not kept.
func (d *Definition[I]) fetchConfigURL(ctx context.Context, c *Client, url, key string) (string, error) {
	cacheKey := url + "\x00" + key

	d.configMu.Lock()
	if u, ok := d.configURLs[cacheKey]; ok {
		d.configMu.Unlock()
		return u, nil
	}
	d.configMu.Unlock()

	ch := d.configFetch.DoChan(cacheKey, func() (any, error) {
		// a fetch may have completed since the check above
		d.configMu.Lock()
		u, ok := d.configURLs[cacheKey]
		d.configMu.Unlock()
		if ok {
			return u, nil
		}

		req := &Request{
			Method:       http.MethodGet,
			URL:          url,
			Header:       NewValues(),
			Query:        NewQueryValues(),
			ResponseType: JSON,
		}
		resp, err := c.transport.Do(context.WithoutCancel(ctx), req)
		if err != nil {
			return "", fmt.Errorf("fetch base url config %s: %w", url, err)
		}
		if !resp.OK() {
			return "", &Error{
				Kind:       KindTransport,
				Status:     resp.Status,
				StatusText: resp.StatusText,
				Response:   resp,
				Err:        fmt.Errorf("fetch base url config %s", url),
			}
		}

		result := gjson.GetBytes(resp.Body, key)
		if !result.Exists() {
			return "", fmt.Errorf("%w: %q in %s", ErrBaseURLKey, key, url)
		}

		base := result.String()
		d.configMu.Lock()
		d.configURLs[cacheKey] = base
		d.configMu.Unlock()

		c.logger.Debug("base url resolved from config",
			zap.String("definition", d.name),
			zap.String("config_url", url),
			zap.String("key", key),
			zap.String("base_url", base),
		)
		return base, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
