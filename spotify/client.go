// Package spotify resolves open.spotify.com track links into a
// title/artist pair so the catalog search can work from a link the
// caller pasted instead of free text. Optional; enabled via env.
package spotify

import (
	"context"
	"errors"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/config"
)

var Spotify *spotifyclient.Client

type TrackInfo struct {
	Title   string
	Artists []string
}

func NewSpotifyClient() error {
	ctx := context.Background()
	cfg := &clientcredentials.Config{
		ClientID:     config.Config.Spotify.ClientID,
		ClientSecret: config.Config.Spotify.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := cfg.Token(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	Spotify = spotifyclient.New(httpClient)
	return nil
}

// IsTrackURL reports whether the query is an open.spotify.com track link.
func IsTrackURL(query string) bool {
	return strings.HasPrefix(query, "https://open.spotify.com/track/")
}

// ParseTrackURL extracts the track id from an open.spotify.com link,
// dropping query parameters such as ?si= tracking ids.
func ParseTrackURL(url string) (string, error) {
	if !strings.HasPrefix(url, "https://open.spotify.com/") {
		return "", errors.New("invalid Spotify URL")
	}
	parts := strings.Split(url, "/")
	if len(parts) < 5 || parts[3] != "track" {
		return "", errors.New("not a Spotify track URL")
	}
	id := strings.Split(parts[4], "?")[0]
	if id == "" {
		return "", errors.New("missing track id in Spotify URL")
	}
	return id, nil
}

func GetTrack(trackID string) (*TrackInfo, error) {
	log.Tracef("Fetching track from Spotify API: %s", trackID)
	ctx := context.Background()

	span := sentry.StartSpan(ctx, "spotify.get_track")
	span.Description = "Get track from Spotify API"
	span.SetTag("track_id", trackID)
	defer span.Finish()

	track, err := Spotify.GetTrack(ctx, spotifyclient.ID(trackID))
	if err != nil {
		log.Errorf("Failed to fetch Spotify track %s: %v", trackID, err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}

	artists := []string{}
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	log.Debugf("Successfully fetched Spotify track: '%s' by %v", track.Name, artists)
	span.Status = sentry.SpanStatusOK
	return &TrackInfo{
		Title:   track.Name,
		Artists: artists,
	}, nil
}

// ResolveQuery turns a Spotify track link into "title artist" search
// text. Non-link queries pass through unchanged.
func ResolveQuery(song string) (title string, artist string, err error) {
	id, err := ParseTrackURL(song)
	if err != nil {
		return "", "", err
	}
	info, err := GetTrack(id)
	if err != nil {
		return "", "", err
	}
	return info.Title, strings.Join(info.Artists, " "), nil
}
