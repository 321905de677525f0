package composite

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"echvid/internal/config"
)

// Style carries the overlay and codec settings.
type Style struct {
	VideoCodec        string
	AudioCodec        string
	CueSeconds        float64
	FontSize          int
	FontColor         string
	FontFile          string
	WatermarkText     string
	WatermarkFontSize int
	WatermarkOpacity  float64
}

// StyleFromConfig copies the composite config section.
func StyleFromConfig(cfg config.Composite) Style {
	return Style{
		VideoCodec:        cfg.VideoCodec,
		AudioCodec:        cfg.AudioCodec,
		CueSeconds:        cfg.CueSeconds,
		FontSize:          cfg.FontSize,
		FontColor:         cfg.FontColor,
		FontFile:          cfg.FontFile,
		WatermarkText:     cfg.WatermarkText,
		WatermarkFontSize: cfg.WatermarkFontSize,
		WatermarkOpacity:  cfg.WatermarkOpacity,
	}
}

func (s Style) withDefaults() Style {
	if s.VideoCodec == "" {
		s.VideoCodec = "libx264"
	}
	if s.AudioCodec == "" {
		s.AudioCodec = "aac"
	}
	if s.CueSeconds <= 0 {
		s.CueSeconds = DefaultCueSeconds
	}
	if s.FontSize <= 0 {
		s.FontSize = 24
	}
	if s.FontColor == "" {
		s.FontColor = "white"
	}
	if s.WatermarkText == "" {
		s.WatermarkText = "ECHVID FREE VERSION"
	}
	if s.WatermarkFontSize <= 0 {
		s.WatermarkFontSize = 40
	}
	if s.WatermarkOpacity <= 0 || s.WatermarkOpacity > 1 {
		s.WatermarkOpacity = 0.6
	}
	return s
}

// Overlay is one drawtext layer. TextFile holds the rendered text so no
// user text is ever spliced into the filter graph.
type Overlay struct {
	TextFile  string
	Watermark bool
	Start     float64
	End       float64
}

// Plan is a fully resolved ffmpeg invocation.
type Plan struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
	Overlays   []Overlay
	Style      Style
}

// HasWatermark reports whether the plan carries the watermark layer.
func (p Plan) HasWatermark() bool {
	for _, o := range p.Overlays {
		if o.Watermark {
			return true
		}
	}
	return false
}

// CueCount returns the number of subtitle layers.
func (p Plan) CueCount() int {
	n := 0
	for _, o := range p.Overlays {
		if !o.Watermark {
			n++
		}
	}
	return n
}

// WithoutSubtitles returns a copy that keeps only the watermark layer.
func (p Plan) WithoutSubtitles() Plan {
	out := p
	out.Overlays = nil
	for _, o := range p.Overlays {
		if o.Watermark {
			out.Overlays = append(out.Overlays, o)
		}
	}
	return out
}

// Args renders the ffmpeg argument list.
func (p Plan) Args() []string {
	args := []string{
		"-y", "-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", p.VideoPath,
		"-i", p.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	if filters := p.Filters(); len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	args = append(args,
		"-c:v", p.Style.VideoCodec,
		"-c:a", p.Style.AudioCodec,
		"-shortest",
		"-movflags", "+faststart",
		p.OutputPath,
	)
	return args
}

// Filters renders one drawtext filter per overlay.
func (p Plan) Filters() []string {
	filters := make([]string, 0, len(p.Overlays))
	for _, o := range p.Overlays {
		filters = append(filters, p.drawtext(o))
	}
	return filters
}

func (p Plan) drawtext(o Overlay) string {
	opts := []string{"textfile=" + escapeOption(o.TextFile), "expansion=none"}
	if p.Style.FontFile != "" {
		opts = append(opts, "fontfile="+escapeOption(p.Style.FontFile))
	}
	if o.Watermark {
		opts = append(opts,
			"fontsize="+strconv.Itoa(p.Style.WatermarkFontSize),
			"fontcolor="+escapeOption(p.Style.FontColor),
			"alpha="+formatSeconds(p.Style.WatermarkOpacity),
			"x=(w-text_w)/2",
			"y=20",
		)
	} else {
		opts = append(opts,
			"fontsize="+strconv.Itoa(p.Style.FontSize),
			"fontcolor="+escapeOption(p.Style.FontColor),
			"x=(w-text_w)/2",
			"y=h-text_h-40",
			fmt.Sprintf("enable=between(t,%s,%s)", formatSeconds(o.Start), formatSeconds(o.End)),
		)
	}
	return "drawtext=" + escapeGraph(strings.Join(opts, ":"))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Filter arguments are unescaped twice: once by the option parser, once by
// the filtergraph parser.
var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

func escapeOption(value string) string {
	return optionEscaper.Replace(filepath.ToSlash(value))
}

func escapeGraph(value string) string {
	return graphEscaper.Replace(value)
}
