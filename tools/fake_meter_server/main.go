package main

import (
	"log"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/metering"
)

// fakeMeterServer answers measurement requests with synthetic growing
// counters. Drop, duplicate and garbage rates exist to exercise the agent's
// retry and discard paths.
type fakeMeterServer struct {
	conn        net.PacketConn
	latency     time.Duration
	dropRate    float64
	dupRate     float64
	garbageRate float64
	stepMicro   int64

	mu       sync.Mutex
	counters map[string]int64
}

func main() {
	addr := getenvDefault("FAKE_METER_ADDR", ":19090")
	latencyMs := getenvIntDefault("FAKE_METER_LATENCY_MS", 0)
	dropRate := getenvFloatDefault("FAKE_METER_DROP_RATE", 0)
	dupRate := getenvFloatDefault("FAKE_METER_DUP_RATE", 0)
	garbageRate := getenvFloatDefault("FAKE_METER_GARBAGE_RATE", 0)
	stepKWh := getenvFloatDefault("FAKE_METER_STEP_KWH", 0.25)

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	srv := &fakeMeterServer{
		conn:        conn,
		latency:     time.Duration(latencyMs) * time.Millisecond,
		dropRate:    dropRate,
		dupRate:     dupRate,
		garbageRate: garbageRate,
		stepMicro:   int64(stepKWh * float64(ledger.UnitScale)),
		counters:    make(map[string]int64),
	}

	log.Printf("fake meter server listening on %s (step=%s kWh)", conn.LocalAddr(), metering.FormatAmount(srv.stepMicro))
	srv.serve()
}

func (s *fakeMeterServer) serve() {
	buf := make([]byte, 512)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			log.Printf("read error: %v", err)
			return
		}
		meterID, ok := metering.DecodeRequest(buf[:n])
		if !ok {
			log.Printf("ignoring malformed request from %s", addr)
			continue
		}

		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		if s.dropRate > 0 && rand.Float64() < s.dropRate {
			log.Printf("dropping reply for meter %s", meterID)
			continue
		}

		var reply []byte
		if s.garbageRate > 0 && rand.Float64() < s.garbageRate {
			reply = []byte("garbage")
		} else {
			reply = metering.EncodeReading(metering.Reading{
				MeterID: meterID,
				Value:   s.advance(meterID),
				At:      time.Now().UTC(),
			})
		}

		if _, err := s.conn.WriteTo(reply, addr); err != nil {
			log.Printf("write error: %v", err)
			continue
		}
		if s.dupRate > 0 && rand.Float64() < s.dupRate {
			_, _ = s.conn.WriteTo(reply, addr)
		}
	}
}

// advance grows a meter's counter by a jittered step and returns it.
func (s *fakeMeterServer) advance(meterID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.stepMicro
	if step > 0 {
		step = step/2 + rand.Int63n(step)
	}
	s.counters[meterID] += step
	return s.counters[meterID]
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
