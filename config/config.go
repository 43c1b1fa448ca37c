package config

import (
	"os"
	"strconv"
)

type ConfigStruct struct {
	Upstream  UpstreamConfig
	Server    ServerConfig
	Cache     CacheConfig
	Transcode TranscodeConfig
	Spotify   SpotifyConfig
	History   HistoryConfig
}

type UpstreamConfig struct {
	BaseURL           string
	SearchTimeoutSecs int
	FetchTimeoutSecs  int
}

type ServerConfig struct {
	Port          string
	PublicBaseURL string
	LogLevel      string
}

type CacheConfig struct {
	MaxEntries    int
	MaxChunkBytes int
}

type TranscodeConfig struct {
	Bitrate    int // target bitrate in bps (e.g. 32000 for 32 kbps)
	SampleRate int // target sample rate in Hz
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Enabled      bool
}

type HistoryConfig struct {
	DBPath string
}

func (s *SpotifyConfig) IsEnabled() bool {
	return s.Enabled && s.ClientID != "" && s.ClientSecret != ""
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Upstream: UpstreamConfig{
			BaseURL:           getUpstreamBaseURL(),
			SearchTimeoutSecs: getSearchTimeout(),
			FetchTimeoutSecs:  getFetchTimeout(),
		},
		Server: ServerConfig{
			Port:          os.Getenv("PORT"),
			PublicBaseURL: getPublicBaseURL(),
			LogLevel:      os.Getenv("LOG_LEVEL"),
		},
		Cache: CacheConfig{
			MaxEntries:    getCacheMaxEntries(),
			MaxChunkBytes: getMaxChunkBytes(),
		},
		Transcode: TranscodeConfig{
			Bitrate:    getTranscodeBitrate(),
			SampleRate: getTranscodeSampleRate(),
		},
		Spotify: SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
			Enabled:      os.Getenv("SPOTIFY_ENABLED") == "true",
		},
		History: HistoryConfig{
			DBPath: os.Getenv("DB_PATH"),
		},
	}

	Config = config
}

func getUpstreamBaseURL() string {
	url := os.Getenv("UPSTREAM_BASE_URL")
	if url == "" {
		return "http://localhost:3000"
	}
	return url
}

func getPublicBaseURL() string {
	url := os.Getenv("PUBLIC_BASE_URL")
	if url == "" {
		return "http://localhost:8080"
	}
	return url
}

func getSearchTimeout() int {
	timeoutStr := os.Getenv("SEARCH_TIMEOUT_SECONDS")
	if timeoutStr == "" {
		return 15
	}
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		return 15
	}
	return timeout
}

func getFetchTimeout() int {
	timeoutStr := os.Getenv("FETCH_TIMEOUT_SECONDS")
	if timeoutStr == "" {
		return 120
	}
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		return 120
	}
	return timeout
}

func getCacheMaxEntries() int {
	limitStr := os.Getenv("CACHE_MAX_SIZE")
	if limitStr == "" {
		return 100
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000 // keep the resident set bounded on small hosts
	}
	return limit
}

func getMaxChunkBytes() int {
	sizeStr := os.Getenv("MAX_CHUNK_BYTES")
	if sizeStr == "" {
		return 2 * 1024 * 1024 // 2 MB ceiling per track
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return 2 * 1024 * 1024
	}
	return size
}

func getTranscodeBitrate() int {
	bitrateStr := os.Getenv("TRANSCODE_BITRATE")
	if bitrateStr == "" {
		return 32000 // 32 kbps mono is plenty for the embedded client
	}
	bitrate, err := strconv.Atoi(bitrateStr)
	if err != nil || bitrate <= 0 {
		return 32000
	}
	if bitrate < 8000 {
		return 8000
	}
	if bitrate > 128000 {
		return 128000
	}
	return bitrate
}

func getTranscodeSampleRate() int {
	rateStr := os.Getenv("TRANSCODE_SAMPLE_RATE")
	if rateStr == "" {
		return 16000
	}
	rate, err := strconv.Atoi(rateStr)
	if err != nil || rate <= 0 {
		return 16000
	}
	if rate < 8000 {
		return 8000
	}
	if rate > 48000 {
		return 48000
	}
	return rate
}
