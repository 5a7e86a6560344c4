package aib

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"tankarena/internal/config"
	"tankarena/internal/mapdata"
	"tankarena/internal/msclient"
	"tankarena/internal/protocol"
)

// tankTrainState is the per-AI-tank rolling feature window and the action
// most recently dispatched for it, kept separately from the session's
// single shared model (§4.3: one model per session, shared by every AI
// tank on that map).
type tankTrainState struct {
	window        []featureVector // oldest first, capped at protocol.FrameStackDepth
	lastAction    int
	hasLastAction bool
	episode       episodeAccumulator
}

type episodeAccumulator struct {
	rewardSum float64
	startTick uint64
}

// sessionWorker owns one session's duplex stream, its state mirror, and
// its shared trainable model. Grounded on internal/chat/listener.go's
// Connect/Run split, generalized from one global chatroom socket to one
// socket per session.
type sessionWorker struct {
	sessionID string
	mapKey    string
	mapName   string
	cfg       config.AIBConfig

	defs     *tankDefLookup
	idleTicks int

	gameOverSeen bool // gameOver flag of the previous transition's nextState

	conn   *websocket.Conn
	mirror *sessionMirror
	model  *modelHolder
	tanks  map[string]*tankTrainState

	ms      *msclient.Client
	persist *persistenceWorker

	done chan struct{}
}

func dialSessionStream(gbeBaseURL, sessionID string) (*websocket.Conn, error) {
	u, err := url.Parse(gbeBaseURL)
	if err != nil {
		return nil, fmt.Errorf("aib: parse gbe base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("sessionId", sessionID)
	q.Set("role", string(protocol.RoleAI))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// newSessionWorker opens a stream and attaches a model for sum, a session
// summary row (mapName/mapKey/modelKey) already minted by the game
// backend at session creation.
func newSessionWorker(cfg config.AIBConfig, ms *msclient.Client, persist *persistenceWorker,
	sessionID, mapName, mapKey, modelKey string, grid *mapdata.Grid, defs *tankDefLookup, idleTicks int, seed int64) (*sessionWorker, error) {

	conn, err := dialSessionStream(cfg.GBEBaseURL, sessionID)
	if err != nil {
		return nil, err
	}

	w := &sessionWorker{
		sessionID: sessionID,
		mapKey:    mapKey,
		mapName:   mapName,
		cfg:       cfg,
		defs:      defs,
		idleTicks: idleTicks,
		conn:      conn,
		mirror:    newSessionMirror(grid),
		model:     attachModel(ms, modelKey, mapKey, cfg, protocol.StackedFeatureCount, seed),
		tanks:     make(map[string]*tankTrainState),
		ms:        ms,
		persist:   persist,
		done:      make(chan struct{}),
	}
	return w, nil
}

// Run reads frames until the stream closes or Stop is called. A stream that
// ends on its own is not reported to the Manager: the worker stays
// registered, and is not redialed, until its session drops off the game
// backend's session list.
func (w *sessionWorker) Run() {
	defer w.conn.Close()
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case <-w.done:
			return
		default:
		}
		w.handleFrame(data)
	}
}

// Stop closes the stream, causing Run's read loop to return.
func (w *sessionWorker) Stop() {
	close(w.done)
	w.conn.Close()
}

func (w *sessionWorker) handleFrame(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return
	}
	switch head.Type {
	case "state":
		w.handleState(data)
	case "transition":
		w.handleTransition(data)
	}
}

func (w *sessionWorker) handleState(data []byte) {
	var envelope struct {
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}
	var probe struct {
		DeltaFlag bool `json:"delta"`
	}
	json.Unmarshal(envelope.State, &probe)

	if probe.DeltaFlag {
		var d protocol.Delta
		if err := json.Unmarshal(envelope.State, &d); err == nil {
			w.mirror.applyDelta(&d)
		}
		return
	}
	var snap protocol.StateSnapshot
	if err := json.Unmarshal(envelope.State, &snap); err == nil {
		w.mirror.applySnapshot(&snap)
	}
}

// handleTransition implements §4.3 steps 1, 3, 5, 6: for each AI tank row
// in nextState, build/stack features, train on its reward entry, send an
// action, and close its episode on the game-over edge.
func (w *sessionWorker) handleTransition(data []byte) {
	var msg protocol.TransitionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.NextState == nil {
		return
	}
	w.mirror.applyObservations(msg.AIRewards)

	rewardByTank := make(map[string]protocol.RewardEntry, len(msg.AIRewards))
	for _, e := range msg.AIRewards {
		rewardByTank[e.TankID] = e
	}

	closeEpisode := msg.NextState.GameOver && !w.gameOverSeen
	w.gameOverSeen = msg.NextState.GameOver

	for _, row := range msg.NextState.Players {
		t := decodeTankRow(row)
		if t.Role != string(protocol.RoleAI) {
			continue
		}
		if mirrored, ok := w.mirror.tanks[t.ID]; ok {
			t.ShootCooldownTicks = mirrored.ShootCooldownTicks
			t.IdleTicks = mirrored.IdleTicks
		}
		w.stepTank(t, rewardByTank[t.ID], msg.NextState.GameOver, closeEpisode, msg.NextState.GameOverReason)
	}

	if w.model.dueForSave(w.cfg.SaveEverySteps) {
		w.model.lastSavedSteps = w.model.instance.Steps
		w.persist.Enqueue(saveJob{record: w.model.toRecord(), sessionID: w.sessionID, enqueuedAt: time.Now()})
	}
}

func (w *sessionWorker) stepTank(t *tankState, reward protocol.RewardEntry, gameOver, closeEpisode bool, gameOverReason string) {
	train, ok := w.tanks[t.ID]
	if !ok {
		train = &tankTrainState{episode: episodeAccumulator{startTick: w.mirror.tick}}
		w.tanks[t.ID] = train
	}

	oldStacked, hasOld := stackWindow(train.window)

	fv := buildFeatureVector(w.mirror, t, w.defs, w.idleTicks)
	train.window = pushWindow(train.window, fv)
	newStacked, _ := stackWindow(train.window)

	if hasOld && train.hasLastAction {
		tdErr, qMean := w.model.instance.Train(oldStacked[:], train.lastAction, reward.Reward, newStacked[:], gameOver)
		tdLossGauge.WithLabelValues(w.mapKey).Set(absF(tdErr))
		qMeanGauge.WithLabelValues(w.mapKey).Set(qMean)
		epsilonGauge.WithLabelValues(w.mapKey).Set(w.model.instance.Epsilon)
	}

	train.episode.rewardSum += reward.Reward

	action := w.model.instance.ChooseAction(newStacked[:])
	train.lastAction = action
	train.hasLastAction = true
	w.sendAction(t.ID, action)

	if closeEpisode {
		w.model.instance.Episodes++
		episodesCounter.WithLabelValues(w.mapKey).Inc()
		log.Printf("aib: session %s tank %s episode closed: reward=%.2f ticks=%d won=%v",
			w.sessionID, t.ID, train.episode.rewardSum, w.mirror.tick-train.episode.startTick, gameOverReason == "hq_destroyed")
		delete(w.tanks, t.ID)
	}
}

func (w *sessionWorker) sendAction(tankID string, actionIdx int) {
	a := protocol.ActionSpace[actionIdx]
	msg := protocol.InputMessage{
		Type:   "input",
		Role:   protocol.RoleAI,
		TankID: tankID,
		Move:   a.Move,
		Fire:   a.Fire,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("aib: session %s send action failed: %v", w.sessionID, err)
	}
}

// release returns this session's modelKey to MS's free list (§4.3:
// "on session eviction: release the model-key back to MS").
func (w *sessionWorker) release() {
	if err := w.ms.Release(w.mapKey, w.model.modelKey); err != nil {
		log.Printf("aib: release model %s failed: %v", w.model.modelKey, err)
	}
}

func pushWindow(window []featureVector, fv featureVector) []featureVector {
	window = append(window, fv)
	if len(window) > protocol.FrameStackDepth {
		window = window[len(window)-protocol.FrameStackDepth:]
	}
	return window
}

// stackWindow flattens the rolling window into a fixed 108-length stacked
// vector, zero-padding on the left until 4 frames have accumulated; ok is
// false only when the window is still empty (nothing to train on yet).
func stackWindow(window []featureVector) (out [protocol.StackedFeatureCount]float32, ok bool) {
	if len(window) == 0 {
		return out, false
	}
	pad := protocol.FrameStackDepth - len(window)
	for i, fv := range window {
		copy(out[(pad+i)*protocol.FeatureCount:], fv[:])
	}
	return out, true
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// normalizeMapKey mirrors internal/gbe/registry.go's normalizeMapKey
// exactly (strip the trailing extension, no case-folding) so the AI
// backend can reconstruct a mapKey if a session summary ever omits one
// (defensive; GBE always populates it today).
func normalizeMapKey(mapName string) string {
	key := mapName
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			key = key[:i]
			break
		}
	}
	return key
}
