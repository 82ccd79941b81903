package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/filter"
	"github.com/ayusman/framepipe/internal/frame"
	"github.com/ayusman/framepipe/internal/stage"
	"github.com/ayusman/framepipe/internal/telemetry"
)

// ProcessingStageName is the name the processing stage reports under.
const ProcessingStageName = "processing"

// DefaultGetTimeout is how long the processing stage waits for a frame before
// checking whether capture is still alive.
const DefaultGetTimeout = 100 * time.Millisecond

// Processor is the processing stage: it pops raw frames, runs the filter
// chain with one config snapshot per frame and publishes the result.
type Processor struct {
	in         *frame.Buffer
	out        *frame.Buffer
	pipeline   *config.Pipeline
	chain      *filter.Chain
	upstream   *stage.State
	state      *stage.State
	getTimeout time.Duration
	log        logrus.FieldLogger
	events     *event.Bus
	stats      *telemetry.Stats

	// last reported results, used to publish changes only
	matched *bool
	regions int
}

// runProcessing is the processing loop.
//
// Pipeline logic:
// 1. Wait up to getTimeout for a raw frame
// 2. On timeout, exit if capture is gone and nothing is left to drain
// 3. Snapshot the config, run the chain, publish the result
// 4. Report match and region changes on the event bus
func (p *Processor) runProcessing(ctx context.Context) {
	p.chain.Reset()
	p.matched = nil
	p.regions = 0

	p.state.MarkRunning()
	p.log.Info("Processing stage running")
	p.events.Emit(event.StageStarted, ProcessingStageName, nil)

	reason := p.loop(ctx)

	p.state.MarkStopped(nil)
	p.log.WithField("reason", reason).Info("Processing stage stopped")
	p.events.Emit(event.StageStopped, ProcessingStageName, map[string]any{"reason": reason})
}

func (p *Processor) loop(ctx context.Context) string {
	for {
		f, err := p.in.Get(ctx, p.getTimeout)
		if ctx.Err() != nil {
			f.Close()
			return "cancelled"
		}
		if errors.Is(err, frame.ErrEmpty) {
			if !p.upstream.Active() && p.in.IsEmpty() {
				return "end of stream"
			}
			continue
		}
		if err != nil {
			return "cancelled"
		}

		started := time.Now()
		snap := p.pipeline.Snapshot()

		mat, res := p.chain.Process(f.Mat, snap)
		out := f.Derive(mat)
		f.Close()

		p.stats.FrameProcessed(time.Since(started))
		p.report(out.Seq, res)

		err = p.out.Put(ctx, out)
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrFull):
			p.log.WithFields(logrus.Fields{"seq": out.Seq, "buffer": p.out.Name()}).Debug("Dropped frame, buffer full")
			out.Close()
		default:
			out.Close()
			return "cancelled"
		}
	}
}

func (p *Processor) report(seq uint64, res filter.Result) {
	if res.Matching {
		if p.matched == nil || *p.matched != res.Match.Matched {
			matched := res.Match.Matched
			p.matched = &matched
			p.log.WithFields(logrus.Fields{"seq": seq, "matched": matched, "payload": res.Match.Payload}).Info("Match changed")
			p.events.Emit(event.MatchChanged, ProcessingStageName, map[string]any{
				"seq":     seq,
				"matched": matched,
				"payload": res.Match.Payload,
			})
		}
		if res.Match.Err != nil {
			p.log.WithError(res.Match.Err).WithField("seq", seq).Debug("Decoder failed")
		}
	}

	if len(res.Regions) != p.regions {
		p.regions = len(res.Regions)
		if p.regions > 0 {
			areas := make([]float64, len(res.Regions))
			for i, r := range res.Regions {
				areas[i] = r.Area
			}
			p.events.Emit(event.MotionRegions, ProcessingStageName, map[string]any{
				"seq":     seq,
				"count":   p.regions,
				"areas":   areas,
				"regions": res.Regions,
			})
		}
	}
}
