// Package crawler probes the portal over plain HTTP.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/gocolly/colly"
	"github.com/patrickmn/go-cache"
)

const (
	browserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:139.0) Gecko/20100101 Firefox/139.0"
	statusKey    = "status"
)

// Status is the outcome of one probe.
type Status struct {
	Online    bool      `json:"online"`
	Message   string    `json:"message"`
	CheckedAt time.Time `json:"checked_at"`
}

// StatusService checks that the portal answers and serves the form, as a browser would see it.
type StatusService struct {
	cfg        *config.StatusConfig
	log        *slog.Logger
	localCache *cache.Cache
}

func NewStatusService(cfg *config.StatusConfig, log *slog.Logger) *StatusService {
	return &StatusService{
		cfg:        cfg,
		log:        log,
		localCache: cache.New(cfg.Ttl, 2*cfg.Ttl),
	}
}

// Check returns the memoised status, probing the portal when it has expired.
func (s *StatusService) Check(ctx context.Context) *Status {
	if st, ok := s.localCache.Get(statusKey); ok {
		return st.(*Status)
	}
	if err := ctx.Err(); err != nil {
		return &Status{Message: "Status check was cancelled.", CheckedAt: time.Now()}
	}
	st := s.probe()
	if s.cfg.Ttl > 0 {
		s.localCache.Set(statusKey, st, cache.DefaultExpiration)
	}
	return st
}

func (s *StatusService) probe() *Status {
	st := &Status{CheckedAt: time.Now()}
	var (
		statusCode int
		body       string
	)

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(s.cfg.RequestTimeout)
	c.UserAgent = browserAgent
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Referer", s.cfg.URL)
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "same-origin")
		r.Headers.Set("Sec-Fetch-User", "?1")
	})
	c.OnResponse(func(resp *colly.Response) {
		statusCode = resp.StatusCode
		body = string(resp.Body)
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			statusCode = resp.StatusCode
		}
	})

	s.log.Info("checking portal status.", slog.String("url", s.cfg.URL))
	err := c.Visit(s.cfg.URL)

	switch {
	case statusCode == http.StatusOK && strings.Contains(body, s.cfg.ContentID):
		s.log.Info("portal is online and the page content is verified.")
		st.Online, st.Message = true, "Website is online and operational."
	case statusCode == http.StatusOK:
		s.log.Warn("portal is online but the expected content was not found.", slog.String("content_id", s.cfg.ContentID))
		st.Message = "The website is online but not fully functional."
	case statusCode == http.StatusForbidden:
		s.log.Error("portal is blocking automated access.")
		st.Message = "The server is blocking automated access."
	case statusCode != 0:
		s.log.Warn("portal returned an error status.", slog.Int("status", statusCode))
		st.Message = fmt.Sprintf("The website returned an error (Status: %d).", statusCode)
	case isTimeout(err):
		s.log.Error("portal status request timed out.", slog.Duration("timeout", s.cfg.RequestTimeout))
		st.Message = "The website is too slow or unresponsive."
	default:
		if err != nil {
			s.log.Error("portal status request failed.", slog.String("err", err.Error()))
		}
		st.Message = "Could not connect to the website due to a network error."
	}
	return st
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
