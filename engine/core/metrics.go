package core

const AVG_COUNT uint8 = 30

// Frame-time averages are refreshed once this many seconds have accumulated.
const AVERAGE_TIME_UPDATE_INTERVAL float64 = 0.5

type Metrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	frameTimeSum      float64
	accumulatedFrames uint32
	averageFrameTime  float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update records the duration of one frame, in seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}
		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++

	m.frameTimeSum += frameElapsedTime
	m.accumulatedFrames++
	if m.frameTimeSum > AVERAGE_TIME_UPDATE_INTERVAL {
		m.averageFrameTime = m.frameTimeSum / float64(m.accumulatedFrames)
		m.accumulatedFrames = 0
		m.frameTimeSum = 0
	}
}

func (m *Metrics) FrameTime() float64 {
	return m.MSavg
}

// AverageFrameTimeSeconds is refreshed every AVERAGE_TIME_UPDATE_INTERVAL seconds.
func (m *Metrics) AverageFrameTimeSeconds() float64 {
	return m.averageFrameTime
}

func (m *Metrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}
