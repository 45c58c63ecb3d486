package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/ktye/fft"

	"github.com/cbegin/patchpal-go"
	"github.com/cbegin/patchpal-go/internal/config"
	"github.com/cbegin/patchpal-go/internal/keymap"
	"github.com/cbegin/patchpal-go/patch"
)

const (
	windowW    = 1100
	windowH    = 720
	minWindowW = 980
	minWindowH = 680

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	meterInterval = 80 * time.Millisecond
)

var (
	bgColor         = color.RGBA{192, 192, 192, 255}
	panelColor      = color.RGBA{192, 192, 192, 255}
	borderColor     = color.RGBA{128, 128, 128, 255}
	bevelLight      = color.RGBA{255, 255, 255, 255}
	bevelDarker     = color.RGBA{64, 64, 64, 255}
	sunkenBgColor   = color.RGBA{24, 24, 32, 255}
	sliderFillColor = color.RGBA{0, 0, 128, 255}
	meterColor      = color.RGBA{40, 200, 90, 255}
	meterHotColor   = color.RGBA{230, 70, 40, 255}
)

const (
	fftSize    = 2048
	ringBufLen = 16384
)

// analyzer keeps the most recent mono output for the scope.
type analyzer struct {
	mu         sync.Mutex
	sampleRate int
	ring       []float32
	writePos   int
}

func newAnalyzer(sampleRate int) *analyzer {
	return &analyzer{
		sampleRate: sampleRate,
		ring:       make([]float32, ringBufLen),
	}
}

// Tap is called from the audio thread. Keep it minimal: just copy into ring.
func (a *analyzer) Tap(samples []float32) {
	a.mu.Lock()
	for i := 0; i+1 < len(samples); i += 2 {
		a.ring[a.writePos] = (samples[i] + samples[i+1]) * 0.5
		a.writePos = (a.writePos + 1) % ringBufLen
	}
	a.mu.Unlock()
}

// Snapshot copies the latest n samples.
func (a *analyzer) Snapshot(n int) []float32 {
	n = min(n, ringBufLen)
	out := make([]float32, n)
	a.mu.Lock()
	start := (a.writePos - n + ringBufLen) % ringBufLen
	for i := 0; i < n; i++ {
		out[i] = a.ring[(start+i)%ringBufLen]
	}
	a.mu.Unlock()
	return out
}

var keyRunes = map[ebiten.Key]rune{
	ebiten.KeyA: 'a', ebiten.KeyW: 'w', ebiten.KeyS: 's', ebiten.KeyE: 'e',
	ebiten.KeyD: 'd', ebiten.KeyF: 'f', ebiten.KeyT: 't', ebiten.KeyG: 'g',
	ebiten.KeyY: 'y', ebiten.KeyH: 'h', ebiten.KeyU: 'u', ebiten.KeyJ: 'j',
	ebiten.KeyK: 'k', ebiten.KeyO: 'o', ebiten.KeyL: 'l', ebiten.KeyP: 'p',
	ebiten.KeySemicolon: ';', ebiten.KeyZ: 'z', ebiten.KeyX: 'x',
	ebiten.KeySpace: ' ', ebiten.KeyEscape: 27,
}

type navEntry struct {
	name  string
	path  string
	isDir bool
}

type game struct {
	engine   *patchpal.Engine
	analyzer *analyzer
	fft      fft.FFT
	window   []float64
	scopeImg *ebiten.Image
	scopeW   int
	scopeH   int
	specBins []float64
	wavePeak float64

	keys keymap.Keymap
	held map[ebiten.Key]int

	volume  float64
	eqGains [5]float64

	level     float64
	lastPoll  time.Time
	draggingV bool
	draggingE int

	demoCancel context.CancelFunc
	demoDone   chan error

	status    string
	statusErr bool

	cwd        string
	nav        []navEntry
	navScroll  int
	loadedPath string

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int

	pressed  []ebiten.Key
	released []ebiten.Key
}

func newGame(e *patchpal.Engine, a *analyzer, volume float64, initialPath string) (*game, error) {
	f, err := fft.New(fftSize)
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if initialPath != "" {
		cwd = filepath.Dir(initialPath)
	}
	g := &game{
		engine:     e,
		analyzer:   a,
		fft:        f,
		window:     make([]float64, fftSize),
		held:       make(map[ebiten.Key]int),
		volume:     volume,
		eqGains:    [5]float64{1, 1, 1, 1, 1},
		draggingE:  -1,
		status:     "Ready",
		cwd:        cwd,
		loadedPath: initialPath,
		textCache:  make(map[string]*ebiten.Image, 1024),
		viewW:      windowW,
		viewH:      windowH,
	}
	for i := range g.window {
		g.window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(fftSize-1)))
	}
	if err := g.refreshNav(); err != nil {
		g.setError(err.Error())
	}
	return g, nil
}

func (g *game) Update() error {
	g.pollDemo()
	if time.Since(g.lastPoll) >= meterInterval {
		g.level = g.engine.OutputLevel()
		g.lastPoll = time.Now()
	}
	if err := g.handleKeys(); err != nil {
		return err
	}
	g.handleMouse()
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)

	l := g.layoutRects()

	g.drawSunkenPanel(screen, l.nav)
	g.drawPanel(screen, l.eq)
	g.drawSunkenPanel(screen, l.info)
	g.drawDarkPanel(screen, l.spectrum)
	g.drawButton(screen, l.demo, g.demoLabel())
	g.drawButton(screen, l.panic, "Panic")
	g.drawVolumeSlider(screen, l.volume)
	g.drawMeter(screen, l.meter)
	g.drawSunkenPanel(screen, l.status)

	g.drawText(screen, "Patches", l.nav.Min.X+8, l.nav.Min.Y+8)

	g.drawNavigator(screen, l.nav)
	g.drawEQ(screen, l.eq)
	g.drawInfo(screen, l.info)
	g.drawSpectrum(screen, l.spectrum)
	g.drawStatus(screen, l.status)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = max(outsideW, minWindowW)
	g.viewH = max(outsideH, minWindowH)
	return g.viewW, g.viewH
}

func (g *game) Close() {
	g.stopDemo()
	_ = g.engine.Shutdown()
}

func (g *game) handleKeys() error {
	g.pressed = inpututil.AppendJustPressedKeys(g.pressed[:0])
	for _, k := range g.pressed {
		r, ok := keyRunes[k]
		if !ok {
			continue
		}
		action, n := g.keys.Press(r)
		switch action {
		case keymap.Note:
			if err := g.engine.NoteOn(n, keymap.Velocity, nil); err != nil {
				g.setError(err.Error())
				continue
			}
			g.held[k] = n
		case keymap.OctaveDown, keymap.OctaveUp:
			g.setStatus(fmt.Sprintf("Octave: %+d", n))
		case keymap.Panic:
			g.allNotesOff()
		case keymap.Quit:
			return ebiten.Termination
		}
	}
	g.released = inpututil.AppendJustReleasedKeys(g.released[:0])
	for _, k := range g.released {
		if n, ok := g.held[k]; ok {
			delete(g.held, k)
			if err := g.engine.NoteOff(n); err != nil {
				g.setError(err.Error())
			}
		}
	}
	return nil
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pointInRect(mx, my, l.demo):
			g.toggleDemo()
			return
		case pointInRect(mx, my, l.panic):
			g.allNotesOff()
			return
		case pointInRect(mx, my, l.volume):
			g.draggingV = true
			g.updateVolumeFromMouse(mx, l.volume)
			return
		case pointInRect(mx, my, l.eq):
			g.clickEQ(mx, my, l.eq)
			return
		case pointInRect(mx, my, l.nav):
			g.clickNavigator(my, l.nav)
			return
		}
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.draggingV = false
		g.draggingE = -1
	}
	if g.draggingV {
		g.updateVolumeFromMouse(mx, l.volume)
	}
	if g.draggingE >= 0 {
		g.dragEQ(my, l.eq)
	}

	_, wy := ebiten.Wheel()
	if wy != 0 && pointInRect(mx, my, l.nav) {
		g.navScroll = max(0, g.navScroll-int(wy*2))
	}
}

type uiLayout struct {
	nav, eq, info, spectrum image.Rectangle
	demo, panic             image.Rectangle
	volume, meter, status   image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	w := max(g.viewW, minWindowW)
	h := max(g.viewH, minWindowH)

	pad := 20
	rowH := 44
	statusH := 40

	statusTop := h - pad - statusH
	controlsTop := statusTop - 8 - rowH

	navW := 280
	eqH := 120
	navBottom := controlsTop - 12
	eqTop := navBottom - eqH
	navRect := image.Rect(pad, pad, pad+navW, eqTop-8)
	eqRect := image.Rect(pad, eqTop, pad+navW, navBottom)

	rightX := navRect.Max.X + 12
	rightW := max(w-rightX-pad, 320)
	contentBottom := controlsTop - 12
	contentH := contentBottom - pad
	scopeH := max(int(float64(contentH)*0.35), 120)
	infoRect := image.Rect(rightX, pad, rightX+rightW, contentBottom-scopeH-8)
	scopeRect := image.Rect(rightX, contentBottom-scopeH, rightX+rightW, contentBottom)

	demoRect := image.Rect(pad, controlsTop, pad+130, controlsTop+rowH)
	panicRect := image.Rect(demoRect.Max.X+8, controlsTop, demoRect.Max.X+8+130, controlsTop+rowH)
	volRect := image.Rect(panicRect.Max.X+8, controlsTop, panicRect.Max.X+8+360, controlsTop+rowH)
	meterRect := image.Rect(volRect.Max.X+8, controlsTop, w-pad, controlsTop+rowH)
	statusRect := image.Rect(pad, statusTop, w-pad, statusTop+statusH)

	return uiLayout{
		nav:      navRect,
		eq:       eqRect,
		info:     infoRect,
		spectrum: scopeRect,
		demo:     demoRect,
		panic:    panicRect,
		volume:   volRect,
		meter:    meterRect,
		status:   statusRect,
	}
}

func (g *game) drawNavigator(screen *ebiten.Image, rect image.Rectangle) {
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenMiddle(g.cwd, maxChars), rect.Min.X+8, rect.Min.Y+8+lineH)

	top := rect.Min.Y + 12 + lineH*2
	rows := max(0, (rect.Max.Y-top-8)/lineH)
	g.navScroll = min(g.navScroll, max(0, len(g.nav)-rows))
	for i := 0; i < rows; i++ {
		idx := g.navScroll + i
		if idx >= len(g.nav) {
			break
		}
		entry := g.nav[idx]
		y := top + i*lineH
		if !entry.isDir && samePath(entry.path, g.loadedPath) {
			ebitenutil.DrawRect(screen, float64(rect.Min.X+4), float64(y), float64(rect.Dx()-8), float64(lineH), sliderFillColor)
		}
		name := entry.name
		if entry.isDir {
			name += "/"
		}
		g.drawText(screen, shortenEnd(name, maxChars), rect.Min.X+8, y)
	}
}

func (g *game) drawInfo(screen *ebiten.Image, rect image.Rectangle) {
	maxChars := max(8, (rect.Dx()-16)/charW)
	lines := g.infoLines()
	rows := max(0, (rect.Dy()-16)/lineH)
	for i, line := range lines {
		if i >= rows {
			break
		}
		g.drawText(screen, shortenEnd(line, maxChars), rect.Min.X+8, rect.Min.Y+8+i*lineH)
	}
}

func (g *game) infoLines() []string {
	var lines []string
	p := g.engine.Patch()
	if p == nil {
		lines = append(lines, "No patch loaded.")
	} else {
		osc := func(name string, o patch.Osc, level float64) string {
			return fmt.Sprintf("%s %s pos %.2f x%d det %.2f lvl %.2f", name, o.Wavetable, o.Position, o.UnisonVoices, o.Detune, o.Level*level)
		}
		onOff := func(on bool) string {
			if on {
				return "on"
			}
			return "off"
		}
		lines = append(lines,
			fmt.Sprintf("%s (%s)", p.Meta.Name, p.Meta.Archetype),
			osc("Osc1", p.Osc1, p.Mixer.Osc1Level),
			osc("Osc2", p.Osc2, p.Mixer.Osc2Level),
			fmt.Sprintf("Noise %.2f  %s %.0f Hz res %.2f drive %.2f", p.Mixer.NoiseLevel, p.Filter.Type, p.Filter.CutoffHz, p.Filter.Resonance, p.Filter.Drive),
			fmt.Sprintf("Amp A %.3f D %.2f S %.2f R %.2f", p.AmpEnv.Attack, p.AmpEnv.Decay, p.AmpEnv.Sustain, p.AmpEnv.Release),
			fmt.Sprintf("Chorus %s  Delay %s %.2fs  Reverb %s", onOff(p.FX.Chorus.On), onOff(p.FX.Delay.On), p.FX.Delay.Time, onOff(p.FX.Reverb.On)),
		)
	}
	lv := g.engine.BusLevels()
	lines = append(lines, fmt.Sprintf("Bus master %.2f dry %.2f wet %.2f", lv.Master, lv.Dry, lv.Wet))

	voices := g.engine.Voices()
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })
	lines = append(lines, "", fmt.Sprintf("Voices %d  Oct %+d  Keys a-; z/x space", len(voices), g.keys.Shift()))
	for _, v := range voices {
		lines = append(lines, fmt.Sprintf("#%-4d note %-3d %-10s %.2f", v.ID, v.Note, v.State, v.Amplitude))
	}
	return lines
}

func (g *game) drawSpectrum(screen *ebiten.Image, rect image.Rectangle) {
	inner := image.Rect(rect.Min.X+8, rect.Min.Y+8, rect.Max.X-8, rect.Max.Y-8)
	width := inner.Dx()
	height := inner.Dy()
	if width <= 0 || height <= 0 {
		return
	}

	if g.scopeImg == nil || g.scopeW != width || g.scopeH != height {
		g.scopeW = width
		g.scopeH = height
		g.scopeImg = ebiten.NewImage(width, height)
	}
	g.scopeImg.Fill(color.RGBA{14, 16, 22, 255})

	snap := g.analyzer.Snapshot(fftSize)

	waveH := int(float64(height) * 0.45)
	g.drawWaveform(g.scopeImg, snap, width, waveH)
	ebitenutil.DrawRect(g.scopeImg, 0, float64(waveH), float64(width), 1, color.RGBA{50, 54, 68, 180})

	specY := waveH + 1
	g.drawSpectrumBars(g.scopeImg, snap, width, height-specY, specY)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(inner.Min.X), float64(inner.Min.Y))
	screen.DrawImage(g.scopeImg, op)
}

func (g *game) drawWaveform(dst *ebiten.Image, samples []float32, width int, height int) {
	if len(samples) < 2 || width < 2 || height < 4 {
		return
	}
	midY := height / 2
	ebitenutil.DrawRect(dst, 0, float64(midY), float64(width), 1, color.RGBA{40, 44, 58, 100})

	// Auto-gain: track peak with fast attack, slow release.
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		peak = max(peak, s)
	}
	target := max(float64(peak), 0.01)
	if target > g.wavePeak {
		g.wavePeak = g.wavePeak*0.3 + target*0.7
	} else {
		g.wavePeak = g.wavePeak*0.995 + target*0.005
	}
	g.wavePeak = max(g.wavePeak, 0.01)
	gain := float64(midY-2) / g.wavePeak

	triggerOffset := findZeroCrossing(samples, len(samples)/4)
	visible := max(len(samples)-triggerOffset, 2)

	waveColor := color.RGBA{80, 200, 255, 220}
	prevX := 0
	prevY := midY - int(float64(samples[triggerOffset])*gain)
	for px := 1; px < width; px++ {
		si := min(triggerOffset+px*visible/width, len(samples)-1)
		y := midY - int(float64(samples[si])*gain)
		ebitenutil.DrawLine(dst, float64(prevX), float64(prevY), float64(px), float64(y), waveColor)
		prevX = px
		prevY = y
	}
}

// findZeroCrossing finds a rising zero-crossing in samples to stabilize the waveform display.
func findZeroCrossing(samples []float32, searchLen int) int {
	searchLen = min(searchLen, len(samples)-2)
	for i := 1; i < searchLen; i++ {
		if samples[i-1] <= 0 && samples[i] > 0 {
			return i
		}
	}
	return 0
}

func (g *game) drawSpectrumBars(dst *ebiten.Image, samples []float32, width int, height int, yOffset int) {
	if len(samples) < fftSize || width < 4 || height < 4 {
		return
	}
	buf := make([]complex128, fftSize)
	for i := range buf {
		buf[i] = complex(float64(samples[len(samples)-fftSize+i])*g.window[i], 0)
	}
	spec := g.fft.Transform(buf)

	numBars := min(max(width/3, 16), 256)
	if len(g.specBins) != numBars {
		g.specBins = make([]float64, numBars)
	}

	halfFFT := fftSize / 2
	minBin := 1
	maxBin := min(halfFFT*18000/(g.analyzer.sampleRate/2), halfFFT)
	logMin := math.Log(float64(minBin))
	logMax := math.Log(float64(maxBin))

	for i := 0; i < numBars; i++ {
		frac0 := float64(i) / float64(numBars)
		frac1 := float64(i+1) / float64(numBars)
		binStart := int(math.Exp(logMin + frac0*(logMax-logMin)))
		binEnd := int(math.Exp(logMin + frac1*(logMax-logMin)))
		if binEnd <= binStart {
			binEnd = binStart + 1
		}
		binEnd = min(binEnd, halfFFT)

		sum := 0.0
		for b := binStart; b < binEnd; b++ {
			sum += cmplx.Abs(spec[b])
		}
		avg := sum / float64(max(binEnd-binStart, 1))

		// -80 dB..0 dB onto 0..1.
		db := 20.0 * math.Log10(avg/float64(fftSize)+1e-10)
		norm := clamp((db+80.0)/80.0, 0, 1)

		prev := g.specBins[i]
		if norm > prev {
			g.specBins[i] = prev*0.3 + norm*0.7
		} else {
			g.specBins[i] = prev*0.85 + norm*0.15
		}
	}

	barW := float64(width) / float64(numBars)
	for i := 0; i < numBars; i++ {
		v := g.specBins[i]
		barH := max(v*float64(height-4), 1)
		x := float64(i) * barW
		y := float64(yOffset) + float64(height-2) - barH
		r, gr, b := spectrumColor(v)
		ebitenutil.DrawRect(dst, x+1, y, barW-1, barH, color.RGBA{r, gr, b, 220})
	}
}

func spectrumColor(v float64) (uint8, uint8, uint8) {
	if v < 0.33 {
		t := v / 0.33
		return uint8(30 + 20*t), uint8(80 + 120*t), uint8(200 + 55*t)
	}
	if v < 0.66 {
		t := (v - 0.33) / 0.33
		return uint8(50 + 140*t), uint8(200 + 30*t), uint8(255 - 100*t)
	}
	t := (v - 0.66) / 0.34
	return uint8(190 + 65*t), uint8(230 - 100*t), uint8(155 - 100*t)
}

func (g *game) drawStatus(screen *ebiten.Image, rect image.Rectangle) {
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(msg, maxChars), rect.Min.X+8, rect.Min.Y+6)
}

func (g *game) drawMeter(screen *ebiten.Image, rect image.Rectangle) {
	g.drawPanel(screen, rect)
	g.drawText(screen, "Lvl", rect.Min.X+8, rect.Min.Y+8)
	trackX := rect.Min.X + 60
	trackW := rect.Dx() - 76
	trackY := rect.Min.Y + rect.Dy()/2 - 6
	if trackW < 20 {
		return
	}
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 12, sunkenBgColor)
	// RMS of a full-scale sine is about 0.7; scale so that reads near full.
	fill := int(float64(trackW) * clamp(g.level/0.7, 0, 1))
	col := meterColor
	if g.level > 0.6 {
		col = meterHotColor
	}
	if fill > 0 {
		ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(fill), 12, col)
	}
}

func (g *game) drawVolumeSlider(screen *ebiten.Image, rect image.Rectangle) {
	g.drawPanel(screen, rect)
	label := fmt.Sprintf("Vol %d%%", int(g.volume*100+0.5))
	g.drawText(screen, label, rect.Min.X+8, rect.Min.Y+8)

	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	trackY := rect.Min.Y + rect.Dy()/2 - 4
	if trackW < 20 {
		return
	}
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW-1), 1, borderColor)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), 1, 7, borderColor)
	fillW := int(float64(trackW) * clamp(g.volume/1.2, 0, 1))
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(trackX+1), float64(trackY+1), float64(fillW-1), 6, sliderFillColor)
	}
	knobX := min(max(trackX+fillW-5, trackX-5), trackX+trackW-5)
	knobRect := image.Rect(knobX, trackY-4, knobX+10, trackY+12)
	ebitenutil.DrawRect(screen, float64(knobRect.Min.X), float64(knobRect.Min.Y), float64(knobRect.Dx()), float64(knobRect.Dy()), panelColor)
	drawBorder(screen, knobRect)
}

func (g *game) updateVolumeFromMouse(mx int, rect image.Rectangle) {
	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	if trackW <= 0 {
		return
	}
	g.volume = clamp(float64(mx-trackX)/float64(trackW), 0, 1) * 1.2
	g.engine.SetMasterVolume(g.volume)
	g.setStatus(fmt.Sprintf("Volume: %d%%", int(g.volume*100+0.5)))
}

func (g *game) clickNavigator(my int, rect image.Rectangle) {
	top := rect.Min.Y + 12 + lineH*2
	row := (my - top) / lineH
	if my < top {
		return
	}
	idx := g.navScroll + row
	if idx < 0 || idx >= len(g.nav) {
		return
	}
	entry := g.nav[idx]
	if entry.isDir {
		g.cwd = entry.path
		g.navScroll = 0
		if err := g.refreshNav(); err != nil {
			g.setError(err.Error())
			return
		}
		g.setStatus("Directory: " + g.cwd)
		return
	}
	if err := g.loadFile(entry.path); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Loaded " + filepath.Base(entry.path))
}

func isPatchFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func (g *game) refreshNav() error {
	items, err := os.ReadDir(g.cwd)
	if err != nil {
		return err
	}
	var dirs, files []navEntry

	parent := filepath.Dir(g.cwd)
	if parent != g.cwd {
		dirs = append(dirs, navEntry{name: "..", path: parent, isDir: true})
	}
	for _, it := range items {
		name := it.Name()
		full := filepath.Join(g.cwd, name)
		if it.IsDir() {
			dirs = append(dirs, navEntry{name: name, path: full, isDir: true})
			continue
		}
		if isPatchFile(name) {
			files = append(files, navEntry{name: name, path: full})
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].name == ".." {
			return true
		}
		if dirs[j].name == ".." {
			return false
		}
		return strings.ToLower(dirs[i].name) < strings.ToLower(dirs[j].name)
	})
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].name) < strings.ToLower(files[j].name)
	})
	g.nav = append(dirs, files...)
	return nil
}

func (g *game) loadFile(path string) error {
	p, err := patch.LoadFile(path)
	if err != nil {
		return err
	}
	if err := g.engine.SetPatch(p); err != nil {
		return err
	}
	g.loadedPath = path
	g.cwd = filepath.Dir(path)
	return g.refreshNav()
}

var eqBandLabels = [5]string{"Lo", "LoM", "Mid", "HiM", "Hi"}

func (g *game) drawEQ(screen *ebiten.Image, rect image.Rectangle) {
	numBands := len(g.eqGains)
	pad := 8
	labelH := 4
	innerX := rect.Min.X + pad
	innerW := rect.Dx() - pad*2
	innerY := rect.Min.Y + labelH
	innerH := rect.Dy() - labelH - pad

	bandW := innerW / numBands
	if bandW < 10 {
		return
	}
	for i := 0; i < numBands; i++ {
		bx := innerX + i*bandW
		bw := bandW - 4
		ebitenutil.DrawRect(screen, float64(bx+bw/2-2), float64(innerY), 4, float64(innerH), bevelDarker)
		centerY := innerY + innerH/2
		ebitenutil.DrawRect(screen, float64(bx), float64(centerY), float64(bw), 1, borderColor)

		// Gain 0..2 maps bottom..top.
		frac := clamp(g.eqGains[i]/2.0, 0, 1)
		knobY := innerY + innerH - int(frac*float64(innerH)) - 4
		knobRect := image.Rect(bx+2, knobY, bx+bw-2, knobY+8)
		ebitenutil.DrawRect(screen, float64(knobRect.Min.X), float64(knobRect.Min.Y), float64(knobRect.Dx()), float64(knobRect.Dy()), panelColor)
		drawBorder(screen, knobRect)
	}
}

func (g *game) clickEQ(mx, my int, rect image.Rectangle) {
	pad := 8
	bandW := (rect.Dx() - pad*2) / len(g.eqGains)
	if bandW <= 0 {
		return
	}
	band := (mx - rect.Min.X - pad) / bandW
	if band < 0 || band >= len(g.eqGains) {
		return
	}
	g.draggingE = band
	g.dragEQ(my, rect)
}

func (g *game) dragEQ(my int, rect image.Rectangle) {
	band := g.draggingE
	innerY := rect.Min.Y + 4
	innerH := rect.Dy() - 12
	if band < 0 || innerH <= 0 {
		return
	}
	gain := (1.0 - clamp(float64(my-innerY)/float64(innerH), 0, 1)) * 2.0
	g.eqGains[band] = gain
	g.engine.SetEQBand(band, float32(gain))
	g.setStatus(fmt.Sprintf("EQ %s: %.1f", eqBandLabels[band], gain))
}

func (g *game) toggleDemo() {
	if g.demoCancel != nil {
		g.stopDemo()
		g.setStatus("Demo stopped")
		return
	}
	if g.engine.Patch() == nil {
		g.setError("Load a patch first")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	g.demoCancel = cancel
	g.demoDone = done
	go func() { done <- g.engine.PlayPhrase(ctx, patchpal.DemoPhrase()) }()
	g.setStatus("Playing demo phrase")
}

func (g *game) pollDemo() {
	if g.demoDone == nil {
		return
	}
	select {
	case err := <-g.demoDone:
		g.demoCancel()
		g.demoCancel = nil
		g.demoDone = nil
		if err != nil && !errors.Is(err, context.Canceled) {
			g.setError(err.Error())
			return
		}
		if !g.statusErr {
			g.setStatus("Demo ended")
		}
	default:
	}
}

func (g *game) stopDemo() {
	if g.demoCancel == nil {
		return
	}
	g.demoCancel()
	<-g.demoDone
	g.demoCancel = nil
	g.demoDone = nil
}

func (g *game) allNotesOff() {
	g.stopDemo()
	clear(g.held)
	if err := g.engine.AllNotesOff(); err != nil {
		g.setStatus(err.Error())
		return
	}
	g.setStatus("All notes off")
}

func (g *game) demoLabel() string {
	if g.demoCancel != nil {
		return "Stop"
	}
	return "Demo"
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawDarkPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), color.RGBA{0, 0, 0, 255})
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string) {
	g.drawPanel(screen, rect)
	labelW := len([]rune(label)) * charW
	x := rect.Min.X + (rect.Dx()-labelW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

// drawBorder draws a raised 3D bevel (highlight top/left, shadow bottom/right).
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken 3D bevel (shadow top/left, highlight bottom/right).
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
	ebitenutil.DrawRect(screen, x+1, y+1, w-3, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+2, 1, h-4, bevelDarker)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 3000 {
			g.textCache = make(map[string]*ebiten.Image, 1024)
		}
		g.textCache[msg] = img
	}
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func shortenMiddle(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 7 {
		return shortenEnd(s, maxChars)
	}
	left := (maxChars - 3) / 2
	right := maxChars - 3 - left
	return string(r[:left]) + "..." + string(r[len(r)-right:])
}

func clamp(v, minV, maxV float64) float64 {
	return min(max(v, minV), maxV)
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	configPath := flag.String("config", "", "path to a YAML engine config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	policy, err := patchpal.ParseStealPolicy(cfg.StealPolicy)
	if err != nil {
		log.Fatal(err)
	}

	var initialPath string
	p := patch.Init()
	if flag.NArg() > 0 {
		initialPath, err = filepath.Abs(flag.Arg(0))
		if err != nil {
			log.Fatalf("resolve %q: %v", flag.Arg(0), err)
		}
		if p, err = patch.LoadFile(initialPath); err != nil {
			log.Fatal(err)
		}
	} else if cfg.Patch != "" {
		if p, err = patch.LoadFile(cfg.Patch); err != nil {
			log.Fatal(err)
		}
	}

	a := newAnalyzer(cfg.SampleRate)
	e, err := patchpal.NewEngine(
		patchpal.WithSampleRate(cfg.SampleRate),
		patchpal.WithBackend(patchpal.BackendEbiten),
		patchpal.WithPolyphony(cfg.Polyphony),
		patchpal.WithStealPolicy(policy),
		patchpal.WithSeed(cfg.Seed),
		patchpal.WithSampleTap(a.Tap),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		log.Fatal(err)
	}
	if err := e.SetPatch(p); err != nil {
		log.Fatal(err)
	}
	e.SetMasterVolume(cfg.Volume())

	g, err := newGame(e, a, cfg.Volume(), initialPath)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("patchpal")
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatal(err)
	}
}
