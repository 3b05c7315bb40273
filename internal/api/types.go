package api

import "encoding/json"

// MediaResult is one catalogue entry returned by search.
type MediaResult struct {
	Title       string   `json:"title"`
	TitleOrig   string   `json:"title_orig"`
	OtherTitle  string   `json:"other_title,omitempty"`
	MediaType   string   `json:"media_type,omitempty"`
	Year        int      `json:"year"`
	Screenshots []string `json:"screenshots,omitempty"`
	ShikimoriID string   `json:"shikimori_id,omitempty"`
	KinopoiskID string   `json:"kinopoisk_id,omitempty"`
	IMDbID      string   `json:"imdb_id,omitempty"`
	Link        string   `json:"link,omitempty"`
}

// SearchResponse is the success data of a search call.
type SearchResponse struct {
	Results []MediaResult `json:"results"`
}

// Translation is one dub or subtitle track for an anime.
type Translation struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Episodes int    `json:"episodes"`
}

// AnimeInfo is the success data of animeSelected.
type AnimeInfo struct {
	Translations []Translation `json:"translations"`
	Episodes     int           `json:"episodes"`
}

// PlayRequest selects an episode to play.
type PlayRequest struct {
	ShikimoriID   string `json:"shikimoriId"`
	Episode       int    `json:"episode"`
	TranslationID string `json:"translationId"`
}

// PlaybackInfo is the player state reported by the backend.
type PlaybackInfo struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Paused   bool    `json:"paused"`
}

// Progress returns position as a 0..100 percentage of duration.
func (p PlaybackInfo) Progress() float64 {
	if p.Duration <= 0 {
		return 0
	}
	pct := p.Position / p.Duration * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// DownloadRequest asks the backend to fetch content to filename.
type DownloadRequest struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// UserInfo identifies the signed-in account.
type UserInfo struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	ID       int64  `json:"id"`
}

// AuthURL is the success data of openAuthUrl. Backends may return nothing.
type AuthURL struct {
	URL string `json:"url,omitempty"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type selectPayload struct {
	ShikimoriID string `json:"shikimoriId"`
}

type togglePayload struct {
	Paused bool `json:"paused"`
}

type exchangePayload struct {
	Code string `json:"code"`
}

// DownloadProgress is the payload of a DownloadProgress event.
type DownloadProgress struct {
	Percent float64 `json:"percent"`
}

// DownloadFailure is the payload of a DownloadError event.
type DownloadFailure struct {
	Message string `json:"message"`
}

func decode[T any](kind string, data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &DecodeError{Kind: kind, Err: err}
	}
	return out, nil
}

// DecodeError reports success data that did not match the expected shape.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Kind + " response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
