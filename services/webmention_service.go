// File: /services/webmention_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chyrp-api/config"
	"chyrp-api/metrics"
	"chyrp-api/models"
	"chyrp-api/repositories"
)

type WebmentionInput struct {
	Source      string `json:"source" form:"source"`
	Target      string `json:"target" form:"target"`
	MentionType string `json:"mention_type" form:"mention_type"`
	AuthorName  string `json:"author_name" form:"author_name"`
	AuthorURL   string `json:"author_url" form:"author_url"`
	AuthorPhoto string `json:"author_photo" form:"author_photo"`
	Content     string `json:"content" form:"content"`
}

type WebmentionService struct {
	mentions *repositories.WebmentionRepository
	posts    *repositories.PostRepository
	users    *repositories.UserRepository
	email    *EmailService
	site     *url.URL
	cfg      config.WebmentionConfig
	client   *http.Client
	log      *zap.Logger
	now      func() time.Time
}

func NewWebmentionService(
	mentions *repositories.WebmentionRepository,
	posts *repositories.PostRepository,
	users *repositories.UserRepository,
	email *EmailService,
	siteURL string,
	cfg config.WebmentionConfig,
	log *zap.Logger,
) (*WebmentionService, error) {
	site, err := url.Parse(siteURL)
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &WebmentionService{
		mentions: mentions,
		posts:    posts,
		users:    users,
		email:    email,
		site:     site,
		cfg:      cfg,
		client:   sourceClient(cfg),
		log:      log,
		now:      time.Now,
	}, nil
}

// ErrBlockedAddress is returned when a source resolves to an address that is
// not publicly routable.
var ErrBlockedAddress = errors.New("source address is not public")

// sourceClient builds the fetch client. Unless private hosts are allowed,
// every dialed address is checked after resolution so redirects and DNS
// answers cannot reach internal hosts.
func sourceClient(cfg config.WebmentionConfig) *http.Client {
	if cfg.AllowPrivateHosts {
		return &http.Client{Timeout: cfg.FetchTimeout}
	}
	dialer := &net.Dialer{Timeout: cfg.FetchTimeout, Control: rejectNonPublic}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: cfg.FetchTimeout, Transport: transport}
}

func rejectNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !isPublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

func isPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast()
}

// WithHTTPClient swaps the client used to fetch sources.
func (s *WebmentionService) WithHTTPClient(c *http.Client) *WebmentionService {
	s.client = c
	return s
}

func parseWebURL(field, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalid(field, fmt.Sprintf("%s must be an absolute http(s) URL", field))
	}
	return u, nil
}

// targetPost resolves a target URL on this site to a post id.
func (s *WebmentionService) targetPost(target *url.URL) (uint, error) {
	if !strings.EqualFold(target.Host, s.site.Host) {
		return 0, invalid("target", "Target is not on this site")
	}
	path := strings.TrimPrefix(target.Path, strings.TrimRight(s.site.Path, "/"))
	rest, ok := strings.CutPrefix(path, "/posts/")
	if !ok {
		return 0, invalid("target", "Target is not a post")
	}
	id, err := strconv.ParseUint(strings.TrimRight(rest, "/"), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid("target", "Target is not a post")
	}
	return uint(id), nil
}

// Receive validates and stores a mention. Verification happens afterwards,
// in the background unless webmention.verify_async is off.
func (s *WebmentionService) Receive(ctx context.Context, in WebmentionInput) (*models.Webmention, error) {
	if in.Source == "" || in.Target == "" {
		return nil, invalid("", "Source and target are required")
	}
	source, err := parseWebURL("source", in.Source)
	if err != nil {
		return nil, err
	}
	target, err := parseWebURL("target", in.Target)
	if err != nil {
		return nil, err
	}
	if source.String() == target.String() {
		return nil, invalid("source", "Source and target must differ")
	}

	postID, err := s.targetPost(target)
	if err != nil {
		return nil, err
	}
	exists, err := s.posts.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	if !exists {
		return nil, notFound("post")
	}

	mentionType := strings.ToLower(strings.TrimSpace(in.MentionType))
	if !models.MentionTypes[mentionType] {
		mentionType = "mention"
	}

	mention := &models.Webmention{
		PostID:      postID,
		SourceURL:   source.String(),
		TargetURL:   target.String(),
		MentionType: mentionType,
		AuthorName:  strings.TrimSpace(in.AuthorName),
		AuthorURL:   strings.TrimSpace(in.AuthorURL),
		AuthorPhoto: strings.TrimSpace(in.AuthorPhoto),
		Content:     in.Content,
		PublishedAt: s.now(),
	}
	if err := s.mentions.Upsert(ctx, mention); err != nil {
		return nil, fmt.Errorf("store webmention: %w", err)
	}
	s.log.Info("webmention received",
		zap.Uint("webmention_id", mention.ID),
		zap.Uint("post_id", postID),
		zap.String("source", mention.SourceURL))

	if s.cfg.VerifyAsync {
		go func(id uint) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.FetchTimeout)
			defer cancel()
			if _, err := s.Verify(ctx, id); err != nil {
				s.log.Warn("webmention verification failed", zap.Uint("webmention_id", id), zap.Error(err))
			}
		}(mention.ID)
	} else if _, err := s.Verify(ctx, mention.ID); err != nil {
		s.log.Warn("webmention verification failed", zap.Uint("webmention_id", mention.ID), zap.Error(err))
	}
	return mention, nil
}

// Verify fetches the source and marks the mention verified iff the source
// body links to the target.
func (s *WebmentionService) Verify(ctx context.Context, id uint) (bool, error) {
	mention, err := s.mentions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, notFound("webmention")
		}
		return false, fmt.Errorf("find webmention: %w", err)
	}

	verified, err := s.sourceLinksTo(ctx, mention.SourceURL, mention.TargetURL)
	if err != nil {
		metrics.WebmentionsVerified.WithLabelValues("error").Inc()
		return false, err
	}
	if err := s.mentions.SetVerified(ctx, id, verified); err != nil {
		return false, fmt.Errorf("update webmention: %w", err)
	}

	if verified {
		metrics.WebmentionsVerified.WithLabelValues("verified").Inc()
		s.notifyAuthor(ctx, mention)
	} else {
		metrics.WebmentionsVerified.WithLabelValues("rejected").Inc()
	}
	return verified, nil
}

func (s *WebmentionService) sourceLinksTo(ctx context.Context, source, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return false, fmt.Errorf("build source request: %w", err)
	}
	req.Header.Set("User-Agent", "chyrp-api webmention verifier")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return false, fmt.Errorf("read source: %w", err)
	}
	return bytes.Contains(body, []byte(target)), nil
}

func (s *WebmentionService) notifyAuthor(ctx context.Context, mention *models.Webmention) {
	if !s.email.Enabled() {
		return
	}
	post, err := s.posts.FindByID(ctx, mention.PostID)
	if err != nil {
		return
	}
	author, err := s.users.FindByID(ctx, post.UserID)
	if err != nil {
		return
	}
	s.email.NotifyWebmention(author, post, mention)
}

// List returns a post's mentions, newest first. Unverified mentions are
// included only when all is set.
func (s *WebmentionService) List(ctx context.Context, postID uint, all bool) ([]models.Webmention, error) {
	exists, err := s.posts.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	if !exists {
		return nil, notFound("post")
	}
	mentions, err := s.mentions.ListByPost(ctx, postID, !all)
	if err != nil {
		return nil, fmt.Errorf("list webmentions: %w", err)
	}
	return mentions, nil
}
