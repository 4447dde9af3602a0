// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command flyvr runs the closed-loop fly VR rig and its helper tools.
//
//	flyvr run                 track, follow and render until the session ends
//	flyvr web                 browser dashboard fed from MQTT
//	flyvr monitor             terminal dashboard fed from MQTT
//	flyvr console             print telemetry messages as they arrive
//	flyvr status-display      SSD1306 panel fed from MQTT
//	flyvr calibrate           measure PIXELS_PER_MM with the stage
//	flyvr track               print detector output without moving anything
//	flyvr projection          print the off-axis matrices for an eye position
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/flyvr_rig/internal/app"
	"github.com/relabs-tech/flyvr_rig/internal/calibration"
	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/projection"
	"github.com/relabs-tech/flyvr_rig/internal/render"
)

var (
	configFile string
	mock       bool
	overrides  []string

	staticDir      string
	webCalibration bool

	calibrationDir string
	trackFrames    int
	trackInterval  time.Duration

	displaysFile string
	eyeFlag      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "flyvr",
		Short:         "closed-loop virtual reality rig for tethered flies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "rig_config.txt", "rig config file (KEY=VALUE)")
	rootCmd.PersistentFlags().BoolVar(&mock, "mock", false, "use simulated stage, camera and trigger")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "override a config key, KEY=VALUE (repeatable)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run one tracking session",
		Args:  cobra.NoArgs,
		RunE:  runRig,
	}

	webCmd := &cobra.Command{
		Use:   "web",
		Short: "serve live telemetry over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE:  runWeb,
	}
	webCmd.Flags().StringVar(&staticDir, "static", "web", "directory served at /")
	webCmd.Flags().BoolVar(&webCalibration, "calibration", false, "enable stage calibration from the browser")
	webCmd.Flags().StringVar(&calibrationDir, "calibration-dir", "calibration", "where calibration results are written")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "terminal dashboard of live telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.RunMonitor(cmd.Context(), cfg)
		},
	}

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "print telemetry messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.RunConsole(cmd.Context(), cfg, os.Stdout)
		},
	}

	displayCmd := &cobra.Command{
		Use:   "status-display",
		Short: "show live telemetry on an SSD1306 panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.RunStatusDisplay(cmd.Context(), cfg)
		},
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "measure camera pixels per stage millimetre",
		Args:  cobra.NoArgs,
		RunE:  runCalibrate,
	}
	calibrateCmd.Flags().StringVar(&calibrationDir, "out", "calibration", "where the result JSON is written")

	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "print what the detector sees",
		Args:  cobra.NoArgs,
		RunE:  runTrack,
	}
	trackCmd.Flags().IntVar(&trackFrames, "frames", 0, "frames to grab, 0 = until interrupted")
	trackCmd.Flags().DurationVar(&trackInterval, "interval", 100*time.Millisecond, "time between frames")

	projectionCmd := &cobra.Command{
		Use:   "projection",
		Short: "print the projection matrix of every display for one eye position",
		Args:  cobra.NoArgs,
		RunE:  runProjection,
	}
	projectionCmd.Flags().StringVar(&displaysFile, "displays", "tv.ini", "display geometry file")
	projectionCmd.Flags().StringVar(&eyeFlag, "eye", "0,0,0", "eye position x,y,z")

	rootCmd.AddCommand(runCmd, webCmd, monitorCmd, consoleCmd, displayCmd, calibrateCmd, trackCmd, projectionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("fatal: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	args := append([]string(nil), overrides...)
	if mock {
		args = append(args, "USE_MOCK_DEVICES=true")
	}
	if err := config.InitGlobal(configFile, args...); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.Get(), nil
}

func runRig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Println("starting fly VR rig")

	setup, err := config.LoadDisplays(cfg.DisplaysFile)
	if err != nil {
		return err
	}
	stimuli, err := config.LoadStimuli(cfg.StimuliFile)
	if err != nil {
		return err
	}
	log.Printf("rig: %d displays, %d stimuli", len(setup.Displays), len(stimuli))

	rig, err := app.NewRig(cfg, setup, stimuli)
	if err != nil {
		return err
	}
	rig.ConfigFile = configFile

	if cfg.MQTTBroker != "" {
		client, err := app.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDRig)
		if err != nil {
			log.Printf("telemetry: disabled, %v", err)
		} else {
			defer client.Disconnect(250)
			rig.Telemetry = client
		}
	}

	manifest, err := rig.Run(cmd.Context())
	if manifest != nil {
		log.Printf("rig: session lasted %v, %d moves, %d stimuli presented",
			manifest.Duration().Round(time.Millisecond), manifest.MovesIssued, manifest.StimuliPresented)
	}
	return err
}

func runWeb(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Println("starting fly VR web server (MQTT subscriber)")

	opts := app.WebOptions{StaticDir: staticDir}
	if webCalibration {
		log.Println("web: calibration enabled; do not run it while a session is using the stage")
		opts.Calibrate = app.NewCalibrateFunc(cfg, calibrationDir)
	}
	return app.RunWeb(cmd.Context(), cfg, opts)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Println("Stage calibration")
	fmt.Println("Place the marker under the camera and keep it still.")

	progress := func(p calibration.Progress) {
		fmt.Printf("[%d/%d] %s\n", p.Index, p.Total, p.Step)
	}
	res, err := app.NewCalibrateFunc(cfg, calibrationDir)(cmd.Context(), progress)
	if err != nil {
		return err
	}

	for _, ax := range res.Axes {
		fmt.Printf("  %s: %.4f px/mm  sign %+d  cross-talk %.3f  confidence %.2f\n",
			ax.Axis, ax.PixelsPerMM, ax.Sign, ax.CrossTalk, ax.Confidence)
	}
	for _, n := range res.Notes {
		fmt.Printf("  note: %s\n", n)
	}
	fmt.Printf("confidence %.2f\n", res.Confidence)
	fmt.Printf("add to %s:\n  %s\n", configFile, res.ConfigLine())
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := app.OpenTracking(cfg)
	if err != nil {
		return err
	}
	defer t.Close()
	return app.RunTrackerCheck(cmd.Context(), t.Camera, t.Detector, cfg.PixelsPerMM, trackInterval, trackFrames, os.Stdout)
}

func runProjection(cmd *cobra.Command, args []string) error {
	eye, err := parseEye(eyeFlag)
	if err != nil {
		return err
	}
	setup, err := config.LoadDisplays(displaysFile)
	if err != nil {
		return err
	}
	mats, err := projection.All(eye, render.Screens(setup.Displays), setup.NearClip, setup.FarClip)
	if err != nil {
		return err
	}
	for i, d := range setup.Displays {
		fmt.Printf("%s (id %d):\n%s\n", d.Name, d.ID, mats[i].String())
	}
	return nil
}

// parseEye reads "x,y,z".
func parseEye(s string) (mgl64.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl64.Vec3{}, errors.New("eye must be x,y,z")
	}
	var v mgl64.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("eye %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}
