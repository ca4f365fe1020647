package jobs

import (
	"fmt"
	"slices"
	"strings"

	"facelane/internal/services"
)

// Mode selects the source/target kinds and the model pair used by the engine.
type Mode string

const (
	ModePhotoVideoFast       Mode = "photo_video_fast"
	ModePhotoVideoQuality    Mode = "photo_video_quality"
	ModePhotoPhotoGPEN       Mode = "photo_photo_gpen"
	ModePhotoPhotoCodeFormer Mode = "photo_photo_codeformer"
)

// Models is the engine model pair for a mode.
type Models struct {
	Swapper  string
	Enhancer string
}

var modeModels = map[Mode]Models{
	ModePhotoVideoFast:       {Swapper: "inswapper_128_fp16", Enhancer: "gfpgan_1.4"},
	ModePhotoVideoQuality:    {Swapper: "hyperswap_1c_256", Enhancer: "codeformer"},
	ModePhotoPhotoGPEN:       {Swapper: "hyperswap_1c_256", Enhancer: "gpen_bfr_1024"},
	ModePhotoPhotoCodeFormer: {Swapper: "hyperswap_1c_256", Enhancer: "codeformer"},
}

var allModes = []Mode{ModePhotoVideoFast, ModePhotoVideoQuality, ModePhotoPhotoGPEN, ModePhotoPhotoCodeFormer}

// AllModes returns the supported modes in display order.
func AllModes() []Mode {
	return slices.Clone(allModes)
}

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := modeModels[mode]; !ok {
		return "", services.Wrap(services.ErrValidation, "jobs", "parse mode", fmt.Sprintf("unknown mode %q", value), nil)
	}
	return mode, nil
}

// TargetKind derives the lane from the mode. Every photo_video mode targets
// video; everything else targets an image.
func (m Mode) TargetKind() TargetKind {
	if strings.HasPrefix(string(m), "photo_video") {
		return KindVideo
	}
	return KindImage
}

// Models returns the engine model pair for the mode.
func (m Mode) Models() Models {
	if models, ok := modeModels[m]; ok {
		return models
	}
	if m.TargetKind() == KindVideo {
		return modeModels[ModePhotoVideoFast]
	}
	return modeModels[ModePhotoPhotoCodeFormer]
}
