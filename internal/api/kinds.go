package api

// Outbound message kinds understood by the backend.
const (
	KindSearch          = "search"
	KindAnimeSelected   = "animeSelected"
	KindPlayEpisode     = "playEpisode"
	KindGetPlaybackInfo = "getPlaybackInfo"
	KindTogglePlayback  = "togglePlayback"
	KindStopPlayback    = "stopPlayback"
	KindStartDownload   = "startDownload"
	KindOpenAuthURL     = "openAuthUrl"
	KindExchangeCode    = "exchangeCode"
	KindGetUserInfo     = "getUserInfo"
	KindLogout          = "logout"
)

// Unsolicited event kinds pushed by the backend.
const (
	EventDownloadProgress = "DownloadProgress"
	EventDownloadComplete = "DownloadComplete"
	EventDownloadError    = "DownloadError"
)

// DefaultDownloadContentType is sent when a download request names none.
const DefaultDownloadContentType = "application/x-mpegURL"
