// Package ffmpeg locates the ffmpeg and ffprobe executables.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

var ErrNotFound = errors.New("ffmpeg binaries not found")

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

// Locator resolves binaries once. Explicit paths win over the
// LIPISTUDIO_FFMPEG_PATH / LIPISTUDIO_FFPROBE_PATH environment, which wins
// over $PATH.
type Locator struct {
	FFmpeg  string
	FFprobe string

	// overridable in tests
	lookPath func(string) (string, error)
	getenv   func(string) string

	once  sync.Once
	paths BinaryPaths
	err   error
}

func NewLocator(ffmpegPath, ffprobePath string) *Locator {
	return &Locator{
		FFmpeg:   ffmpegPath,
		FFprobe:  ffprobePath,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
}

var defaultLocator = NewLocator("", "")

func Ensure() (BinaryPaths, error) {
	return defaultLocator.Ensure()
}

func FFmpegPath() (string, error) {
	return defaultLocator.FFmpegPath()
}

func FFprobePath() (string, error) {
	return defaultLocator.FFprobePath()
}

func (l *Locator) Ensure() (BinaryPaths, error) {
	l.once.Do(func() {
		l.paths, l.err = l.resolve()
	})
	return l.paths, l.err
}

func (l *Locator) FFmpegPath() (string, error) {
	paths, err := l.Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func (l *Locator) FFprobePath() (string, error) {
	paths, err := l.Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

func (l *Locator) resolve() (BinaryPaths, error) {
	ffmpegPath, err := l.find(l.FFmpeg, "LIPISTUDIO_FFMPEG_PATH", "ffmpeg")
	if err != nil {
		return BinaryPaths{}, err
	}
	ffprobePath, err := l.find(l.FFprobe, "LIPISTUDIO_FFPROBE_PATH", "ffprobe")
	if err != nil {
		return BinaryPaths{}, err
	}
	return BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

func (l *Locator) find(explicit, envKey, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if l.getenv != nil {
		if p := l.getenv(envKey); p != "" {
			return p, nil
		}
	}
	lookPath := l.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	found, err := lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s (set %s or install it on PATH)", ErrNotFound, name, envKey)
	}
	return found, nil
}
