// Package scraper fetches a page and extracts its readable text.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"webchat/internal/apperr"
	"webchat/internal/text"
)

const (
	userAgent      = "Mozilla/5.0 (compatible; WebChatBot/1.0)"
	minTextLength  = 50
	maxBodyBytes   = 10 << 20
	defaultTimeout = 30 * time.Second
)

const noise = "script, style, nav, header, footer, aside, form, noscript, iframe, svg"

type Page struct {
	URL   string
	Title string
	Text  string
}

type Scraper struct {
	client    *http.Client
	converter *md.Converter
}

func New(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		converter: md.NewConverter("", true, nil),
	}
}

// Scrape downloads url and returns its main content as Markdown-flavoured text.
// Unreachable pages and pages without meaningful text are input errors.
func (s *Scraper) Scrape(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %s: %v", apperr.ErrInvalidInput, url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: could not fetch %s: %v", apperr.ErrInvalidInput, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: could not fetch %s: status %d", apperr.ErrInvalidInput, url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse %s: %v", apperr.ErrInvalidInput, url, err)
	}

	page := &Page{URL: url, Title: strings.TrimSpace(doc.Find("title").First().Text())}
	page.Text = s.extract(doc)
	if len(strings.TrimSpace(page.Text)) < minTextLength {
		return nil, fmt.Errorf("%w: could not extract meaningful content from %s. "+
			"The page may be JavaScript-rendered or require authentication", apperr.ErrInvalidInput, url)
	}
	return page, nil
}

func (s *Scraper) extract(doc *goquery.Document) string {
	doc.Find(noise).Remove()

	main := doc.Find("article").First()
	if main.Length() == 0 {
		main = doc.Find("main").First()
	}
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}
	if main.Length() == 0 {
		main = doc.Selection
	}

	html, err := goquery.OuterHtml(main)
	if err != nil {
		return text.CleanPage(main.Text())
	}
	out, err := s.converter.ConvertString(html)
	if err != nil {
		return text.CleanPage(main.Text())
	}
	return text.CleanPage(out)
}
