package app

import (
	"context"
	"log"

	"github.com/relabs-tech/flyvr_rig/internal/calibration"
	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/devices"
	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

// Tracking is the stage and camera without the projectors, for calibration
// and tracker checks.
type Tracking struct {
	Motor    motion.Motor
	Camera   vision.Camera
	Detector vision.Detector
}

// OpenTracking opens the stage and camera named by cfg, or simulated ones
// showing a marker fixed under the stage when USE_MOCK_DEVICES is set.
func OpenTracking(cfg *config.Config) (*Tracking, error) {
	t := &Tracking{Detector: detectorFor(cfg)}

	if cfg.UseMockDevices {
		log.Printf("tracking: using mock devices")
		m := motion.NewMockMotor(mockStageTravel)
		t.Motor = m
		t.Camera = vision.NewMockCamera(cfg.CameraWidth, cfg.CameraHeight, cfg.PixelsPerMM, fixedMarker{stage: m})
		return t, nil
	}

	grbl, err := devices.OpenGRBL(cfg.GRBLSerialPort, cfg.GRBLBaudRate, cfg.GRBLFeedRate)
	if err != nil {
		return nil, err
	}
	cam, err := devices.OpenWebcam(cfg.CameraDevice, cfg.CameraWidth, cfg.CameraHeight)
	if err != nil {
		closeQuietly("motor", grbl)
		return nil, err
	}
	t.Motor, t.Camera = grbl, cam
	return t, nil
}

// Close releases the camera, then the stage.
func (t *Tracking) Close() error {
	closeQuietly("camera", t.Camera)
	closeQuietly("motor", t.Motor)
	return nil
}

// NewCalibrateFunc returns a CalibrateFunc that opens the tracking devices
// for each run and saves every successful result under resultDir.
func NewCalibrateFunc(cfg *config.Config, resultDir string) CalibrateFunc {
	return func(ctx context.Context, progress func(calibration.Progress)) (calibration.Result, error) {
		t, err := OpenTracking(cfg)
		if err != nil {
			return calibration.Result{}, err
		}
		defer t.Close()

		res, err := calibration.Run(ctx, t.Motor, t.Camera, t.Detector, calibration.Options{Progress: progress})
		if err != nil {
			return res, err
		}
		path, err := calibration.WriteResult(resultDir, res)
		if err != nil {
			return res, err
		}
		log.Printf("calibration: saved %s", path)
		return res, nil
	}
}

func detectorFor(cfg *config.Config) vision.ThresholdDetector {
	return vision.ThresholdDetector{
		BlurSize:  cfg.CameraBlurSize,
		Threshold: uint8(cfg.CameraThreshold),
		MinArea:   cfg.CameraMinBlobArea,
	}
}

// fixedMarker is a still marker seen by a camera riding on the stage.
type fixedMarker struct {
	stage motion.Motor
}

func (f fixedMarker) Next() (orientation.Pose, error) {
	st, err := f.stage.ReadStatus()
	if err != nil {
		return orientation.Pose{}, err
	}
	return orientation.Pose{X: st.X, Z: -st.Y, Yaw: 0.3}, nil
}
