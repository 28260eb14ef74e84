package applemusic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://music.apple.com"

// Track is the song metadata read off an Apple Music page.
type Track struct {
	Title  string
	Artist string
}

// Query is a Spotify search query for the song.
func (t Track) Query() string {
	return fmt.Sprintf("track:%s artist:%s", t.Title, t.Artist)
}

// Scraper reads song pages from Apple Music.
type Scraper struct {
	BaseURL string
	client  *http.Client
	logger  *log.Entry
}

func NewScraper() *Scraper {
	return &Scraper{
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger: log.WithFields(log.Fields{
			"module": "applemusic",
		}),
	}
}

// Lookup fetches the page behind link and pulls the title and artist out of
// its JSON-LD block, falling back to the Open Graph tags.
func (s *Scraper) Lookup(ctx context.Context, link TrackLink) (*Track, error) {
	span := sentry.StartSpan(ctx, "applemusic.lookup")
	span.Description = "Scrape Apple Music song page"
	span.SetTag("album_id", link.AlbumID)
	span.SetTag("track_id", link.TrackID)
	defer span.Finish()

	track, err := s.scrape(ctx, link)
	if err != nil {
		s.logger.Warnf("Failed to read Apple Music track %s: %v", link.TrackID, err)
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}

	s.logger.Debugf("Apple Music track %s is '%s' by %s", link.TrackID, track.Title, track.Artist)
	span.Status = sentry.SpanStatusOK
	return track, nil
}

func (s *Scraper) scrape(ctx context.Context, link TrackLink) (*Track, error) {
	pageURL := fmt.Sprintf("%s/%s/album/%s?i=%s", s.BaseURL, link.Country, link.AlbumID, link.TrackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	// Apple serves a stripped page to unknown agents
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if track, err := fromJSONLD(doc); err == nil {
		return track, nil
	}
	return fromOpenGraph(doc)
}

type recording struct {
	Type     string          `json:"@type"`
	Name     string          `json:"name"`
	ByArtist json.RawMessage `json:"byArtist"`
}

type namedEntity struct {
	Name string `json:"name"`
}

func fromJSONLD(doc *goquery.Document) (*Track, error) {
	var track *Track

	doc.Find("script[type='application/ld+json']").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		var rec recording
		if err := json.Unmarshal([]byte(sel.Text()), &rec); err != nil || rec.Type != "MusicRecording" || rec.Name == "" {
			return true
		}

		// byArtist is either one object or a list of them
		var single namedEntity
		var many []namedEntity
		artist := ""
		if err := json.Unmarshal(rec.ByArtist, &single); err == nil {
			artist = single.Name
		} else if err := json.Unmarshal(rec.ByArtist, &many); err == nil && len(many) > 0 {
			artist = many[0].Name
		}
		if artist == "" {
			return true
		}

		track = &Track{Title: rec.Name, Artist: artist}
		return false
	})

	if track == nil {
		return nil, errors.New("no MusicRecording in JSON-LD")
	}
	return track, nil
}

func fromOpenGraph(doc *goquery.Document) (*Track, error) {
	title, _ := doc.Find("meta[property='og:title']").Attr("content")
	if title == "" {
		title, _ = doc.Find("meta[name='twitter:title']").Attr("content")
	}
	if title == "" {
		return nil, errors.New("no title in Open Graph tags")
	}

	artist, _ := doc.Find("meta[property='music:musician_description']").Attr("content")
	if artist == "" {
		// page titles look like "Song - Artist on Apple Music"
		pageTitle := doc.Find("title").First().Text()
		if _, rest, ok := strings.Cut(pageTitle, " - "); ok {
			artist = strings.TrimSpace(strings.TrimSuffix(rest, " on Apple Music"))
		}
	}
	if artist == "" {
		return nil, errors.New("no artist in Open Graph tags or page title")
	}

	return &Track{Title: title, Artist: artist}, nil
}
