package gbe

import "tankarena/internal/protocol"

// gbeDebugLabels and aiDebugLabels are the fixed metric vectors for the two
// debug channels (§4.1 "debug channels"). New labels would extend the
// vector and trigger one re-emit of labels to the affected socket; both
// vectors here are fixed-length so no runtime extension is needed.
var gbeDebugLabels = []string{"bulletCount", "tankCount", "aliveAICount"}
var aiDebugLabels = []string{"queueDepthMax", "idleTicksMax", "rewardAccumTotal"}

func (s *Session) gbeDebugValues() []float64 {
	return []float64{
		float64(len(s.Bullets)),
		float64(len(s.Tanks)),
		float64(s.aliveAICount()),
	}
}

func (s *Session) aiDebugValues() []float64 {
	maxQueue, maxIdle := 0, 0
	total := 0.0
	for _, q := range s.aiInputQueues {
		if len(q) > maxQueue {
			maxQueue = len(q)
		}
	}
	for _, rt := range s.AIRuntimes {
		if rt.IdleTicks > maxIdle {
			maxIdle = rt.IdleTicks
		}
	}
	for _, reasons := range s.AIRewardAccum {
		for _, v := range reasons {
			total += v
		}
	}
	return []float64{float64(maxQueue), float64(maxIdle), total}
}

// attachDebugFrame builds the per-socket debug frame, including Labels only
// on the socket's first emit after subscription (§4.1); called from
// before Send; called from broadcastState for sockets with debug flags set.
func (s *Session) attachDebugFrame(sub *Subscriber, gbeChannel bool) *protocol.DebugFrame {
	enabled := sub.DebugGBE
	sentFlag := &sub.gbeLabelsSent
	labels := gbeDebugLabels
	values := s.gbeDebugValues()
	if !gbeChannel {
		enabled = sub.DebugAI
		sentFlag = &sub.aiLabelsSent
		labels = aiDebugLabels
		values = s.aiDebugValues()
	}
	if !enabled {
		return nil
	}
	frame := &protocol.DebugFrame{Values: values}
	if !*sentFlag {
		frame.Labels = labels
		*sentFlag = true
	}
	return frame
}
