package config

import "flag"

// FlagOverrides collects command-line values. Only flags the user actually
// passed are applied, so unset flags never clobber file or env settings.
type FlagOverrides struct {
	fs     *flag.FlagSet
	values *Config
}

// BindFlags registers the server flags on fs.
func BindFlags(fs *flag.FlagSet) *FlagOverrides {
	o := &FlagOverrides{fs: fs, values: Default()}
	v := o.values

	fs.StringVar(&v.Addr, "addr", v.Addr, "listen address")
	fs.StringVar(&v.OutputDir, "output-dir", v.OutputDir, "directory downloaded files are written to")
	fs.StringVar(&v.Engine, "engine", v.Engine, "extraction engine: ytdlp or youtube")
	fs.StringVar(&v.YtdlpPath, "ytdlp-path", v.YtdlpPath, "path to the yt-dlp executable")
	fs.BoolVar(&v.YtdlpInstall, "ytdlp-install", v.YtdlpInstall, "download yt-dlp automatically when it is missing")
	fs.DurationVar(&v.ProbeTimeout, "probe-timeout", v.ProbeTimeout, "format probe timeout (0 disables)")
	fs.DurationVar(&v.HTTPTimeout, "http-timeout", v.HTTPTimeout, "per-request timeout of the native engine")
	fs.IntVar(&v.MaxWorkers, "max-workers", v.MaxWorkers, "concurrent downloads (0 = unbounded)")
	fs.IntVar(&v.MaxQueued, "max-queued", v.MaxQueued, "downloads allowed to wait for a worker")
	fs.BoolVar(&v.StrictNotFound, "strict-not-found", v.StrictNotFound, "answer 404 for unknown download ids")
	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&v.LogFormat, "log-format", v.LogFormat, "log format: text or json")
	fs.StringVar(&v.CatalogPath, "catalog", v.CatalogPath, "sqlite catalog of finished downloads (empty disables)")
	fs.BoolVar(&v.TagAudio, "tag-audio", v.TagAudio, "write ID3 title tags into mp3 downloads")
	fs.StringVar(&v.S3.Bucket, "s3-bucket", v.S3.Bucket, "publish finished downloads to this S3 bucket")
	return o
}

// Apply copies every explicitly set flag into cfg.
func (o *FlagOverrides) Apply(cfg *Config) {
	v := o.values
	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = v.Addr
		case "output-dir":
			cfg.OutputDir = v.OutputDir
		case "engine":
			cfg.Engine = v.Engine
		case "ytdlp-path":
			cfg.YtdlpPath = v.YtdlpPath
		case "ytdlp-install":
			cfg.YtdlpInstall = v.YtdlpInstall
		case "probe-timeout":
			cfg.ProbeTimeout = v.ProbeTimeout
		case "http-timeout":
			cfg.HTTPTimeout = v.HTTPTimeout
		case "max-workers":
			cfg.MaxWorkers = v.MaxWorkers
		case "max-queued":
			cfg.MaxQueued = v.MaxQueued
		case "strict-not-found":
			cfg.StrictNotFound = v.StrictNotFound
		case "log-level":
			cfg.LogLevel = v.LogLevel
		case "log-format":
			cfg.LogFormat = v.LogFormat
		case "catalog":
			cfg.CatalogPath = v.CatalogPath
		case "tag-audio":
			cfg.TagAudio = v.TagAudio
		case "s3-bucket":
			cfg.S3.Bucket = v.S3.Bucket
		}
	})
}
