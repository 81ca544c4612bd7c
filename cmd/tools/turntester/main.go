// Command turntester pushes a prerecorded WAV file through the
// backend's process-audio endpoint. It exercises the full turn
// pipeline (auth, upload, transcription, reply audio) without a
// microphone, which makes backend changes testable from the shell.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mirovoy/companion/internal/auth"
	"github.com/mirovoy/companion/internal/backend"
	"github.com/mirovoy/companion/internal/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	audioPath := flag.String("audio", "", "path to a WAV file to upload")
	outputPath := flag.String("out", "", "write the reply audio to this file (optional)")
	timeout := flag.Duration("timeout", 90*time.Second, "request timeout")
	flag.Parse()

	if *audioPath == "" {
		flag.Usage()
		log.Fatal("specify the input file with -audio")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	wavData, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatalf("failed to read %s: %v", *audioPath, err)
	}

	manager := auth.NewManager(cfg.Auth)
	client := backend.NewClient(cfg.Backend, manager)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	started := time.Now()
	result, err := client.ProcessAudio(ctx, wavData)
	if err != nil {
		log.Fatalf("process-audio failed: %v", err)
	}

	log.Printf("turn completed in %s", time.Since(started).Round(time.Millisecond))
	log.Printf("transcription: %s", result.Transcription)
	log.Printf("response:      %s", result.Response)
	log.Printf("emotion:       %s", result.Emotion)
	if result.Voice != "" {
		log.Printf("voice:         %s", result.Voice)
	}

	replyAudio, err := result.ReplyAudio()
	if err != nil {
		log.Fatalf("reply audio is not valid base64: %v", err)
	}
	if len(replyAudio) == 0 {
		log.Print("no reply audio returned")
		return
	}
	log.Printf("reply audio:   %d bytes", len(replyAudio))

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, replyAudio, 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", *outputPath, err)
		}
		log.Printf("reply audio written to %s", *outputPath)
	}
}
