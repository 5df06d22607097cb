package tinyquanta

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/zhluo94/tinyquanta/internal/constants"
	"github.com/zhluo94/tinyquanta/internal/coro"
	"github.com/zhluo94/tinyquanta/internal/nic"
	"github.com/zhluo94/tinyquanta/internal/pin"
	"github.com/zhluo94/tinyquanta/internal/preempt"
	"github.com/zhluo94/tinyquanta/internal/ring"
	"github.com/zhluo94/tinyquanta/internal/sched"
)

// ShardConfig configures one per-shard cooperative scheduler (§4.2).
type ShardConfig struct {
	ID int

	NumCoros   int // K, NUM_WORKER_COROS
	Discipline sched.Discipline

	Quantum      uint64 // Q, QUANTUM_CYCLE
	EmptyHandler bool   // USE_EMPTY_HANDLER

	DispatchDequeuePeriod uint64 // D_dq
	DispatchBurst         int    // B_dq
	TXBurst               int    // B_tx
	ReturnBurst           int    // R_ret

	Pin     bool
	BaseCPU int
	NumCPUs int // 0 means runtime.NumCPU()

	Backend Backend
	Ring    nic.Ring

	DispatchRing *ring.SPSC[nic.Packet]
	ReturnRing   *ring.SPSC[nic.Packet]

	Logger   Logger
	Observer Observer
}

// DefaultShardConfig returns a ShardConfig filled from the engine's fixed
// tunables (§2, §4.2), ready to have ID/Backend/Ring/rings assigned.
func DefaultShardConfig() ShardConfig {
	return ShardConfig{
		NumCoros:              constants.NumCorosPerShard,
		Discipline:            sched.FIFO,
		Quantum:               constants.DefaultQuantumCycles,
		DispatchDequeuePeriod: constants.DispatchDequeuePeriod,
		DispatchBurst:         constants.DispatchRingBurstSize,
		TXBurst:               constants.TXQueueBurstSize,
		ReturnBurst:           constants.ReturnRingBurstSize,
		BaseCPU:               constants.DefaultBaseCPU,
		Observer:              NoOpObserver{},
	}
}

// expectedBackendValue is the embedded store's documented fixed-value
// contract (§4.3, §6): every key this engine is ever configured to serve
// maps to this string, so a Get returning anything else means the wrong
// backend is wired in.
const expectedBackendValue = "value"

// shardJob tracks one busy coroutine slot's in-flight state: the RX buffer
// it is answering, the TX buffer it is building, its request header (needed
// to echo id/req_type/req_size into the reply), its preemption governor, and
// when it started (for latency reporting).
type shardJob struct {
	rx        *nic.Packet
	tx        *nic.Packet
	job       coro.Job
	reqHdr    RequestHeader
	governor  preempt.Governor
	startedAt time.Time
}

// Shard is the per-shard cooperative scheduler of §4.2: an idle stack of
// coroutine slots, a run queue of busy ones, and the four-step main loop
// (schedule, dispatch intake, TX flush, return flush).
type Shard struct {
	cfg ShardConfig

	slots []*coro.Slot
	idle  []*coro.Slot // LIFO idle stack
	busy  map[int]*shardJob

	runQ sched.RunQueue

	pendingTX     []*nic.Packet
	pendingReturn []*nic.Packet

	quantaSinceIntake uint64

	localMAC [6]byte
	localIP  net.IP
}

// NewShard constructs a shard with cfg.NumCoros coroutine slots, all
// initially idle. The slot bodies are created here because each one
// closes over this Shard to look up its own in-flight job state.
func NewShard(cfg ShardConfig) *Shard {
	if cfg.NumCoros <= 0 {
		cfg.NumCoros = constants.NumCorosPerShard
	}
	if cfg.DispatchBurst <= 0 {
		cfg.DispatchBurst = constants.DispatchRingBurstSize
	}
	if cfg.TXBurst <= 0 {
		cfg.TXBurst = constants.TXQueueBurstSize
	}
	if cfg.ReturnBurst <= 0 {
		cfg.ReturnBurst = constants.ReturnRingBurstSize
	}
	if cfg.DispatchDequeuePeriod == 0 {
		cfg.DispatchDequeuePeriod = constants.DispatchDequeuePeriod
	}
	if cfg.Quantum == 0 {
		cfg.Quantum = constants.DefaultQuantumCycles
	}
	if cfg.Observer == nil {
		cfg.Observer = NoOpObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = noOpLogger{}
	}

	sh := &Shard{
		cfg:  cfg,
		busy: make(map[int]*shardJob, cfg.NumCoros),
		runQ: sched.New(cfg.Discipline),
	}
	if cfg.Ring != nil {
		sh.localMAC, sh.localIP = cfg.Ring.LocalAddr()
	}
	sh.slots = make([]*coro.Slot, cfg.NumCoros)
	for i := 0; i < cfg.NumCoros; i++ {
		slotID := i
		sh.slots[i] = coro.NewSlot(i, sh.makeBody(slotID))
		sh.idle = append(sh.idle, sh.slots[i])
	}
	return sh
}

// Run pins (if configured) and drives the shard's main loop until ctx is
// cancelled, matching the one-OS-thread-per-shard model of §5.
func (sh *Shard) Run(ctx context.Context) {
	if sh.cfg.Pin {
		cpu := pin.ForShard(sh.cfg.BaseCPU, sh.cfg.ID, sh.cfg.NumCPUs)
		pin.ToCPU(cpu, sh.cfg.Logger)
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sh.step()
		runtime.Gosched()
	}
}

// Close stops every coroutine slot's goroutine. Only safe once the shard's
// main loop has stopped and no slot is busy.
func (sh *Shard) Close() {
	for _, s := range sh.slots {
		s.Close()
	}
}

// BusyCount reports how many coroutine slots are currently serving a job.
func (sh *Shard) BusyCount() int { return len(sh.busy) }

// IdleCount reports how many coroutine slots are available.
func (sh *Shard) IdleCount() int { return len(sh.idle) }

// step runs one iteration of the main loop (§4.2 "Main loop (one
// iteration)"): schedule, dispatch intake, TX flush, return flush.
func (sh *Shard) step() {
	forceDispatch := false
	forceFlush := false

	if entry := sh.runQ.Next(); entry != nil {
		sh.runOne(entry)
	} else {
		forceDispatch = true
		forceFlush = len(sh.pendingTX) > 0
	}

	sh.dispatchIntake(forceDispatch)
	sh.flushTX(forceFlush)
	sh.flushReturn(forceFlush)
}

// runOne resumes (or starts) the coroutine named by entry, arming its
// preemption governor for this turn first.
func (sh *Shard) runOne(entry *sched.Entry) {
	bs, ok := sh.busy[entry.SlotID]
	if !ok {
		panic(NewShardError("SCHEDULE", sh.cfg.ID, ErrCodeInvariant, fmt.Sprintf("run-queue entry for slot %d has no job state", entry.SlotID)))
	}
	slot := sh.slots[entry.SlotID]

	sh.armGovernor(bs, entry)

	var res coro.Result
	var yielded bool
	if slot.State() == coro.StateIdle {
		res, yielded = slot.Dispatch(bs.job)
	} else {
		res, yielded = slot.Continue()
	}
	sh.quantaSinceIntake++

	if yielded {
		entry.NumQuanta++
		sh.runQ.Requeue(entry)
		sh.cfg.Observer.ObserveJob(uint64(time.Since(bs.startedAt).Nanoseconds()), true, true)
		return
	}
	sh.finishJob(entry, bs, res)
}

// armGovernor gives the about-to-run coroutine its preemption budget for
// this turn: under LAS, a fresh quota relative to the run queue's runner-up
// (§4.2); otherwise the same quantum-ticking governor is reset for another
// full quantum. USE_EMPTY_HANDLER bypasses both — the governor it was
// constructed with never requests a yield.
func (sh *Shard) armGovernor(bs *shardJob, entry *sched.Entry) {
	if sh.cfg.EmptyHandler {
		return
	}
	if sh.cfg.Discipline == sched.LAS {
		budget := sh.cfg.DispatchDequeuePeriod
		if sh.quantaSinceIntake < budget {
			budget -= sh.quantaSinceIntake
		} else {
			budget = 1
		}
		bs.governor = preempt.NewLASGovernor(sh.cfg.Quantum, sched.AssignedQuanta(sh.runQ, entry.NumQuanta, budget))
		return
	}
	if qg, ok := bs.governor.(*preempt.QuantumGovernor); ok {
		qg.Reset()
	}
}

// finishJob handles a coroutine that ran to completion: builds the reply
// header into its TX buffer, queues both buffers for flush, and frees the
// slot. A backend error is fatal per §7 ("backend lookup error: abort"), and
// so is a value that doesn't match the embedded store's documented
// fixed-value contract (§4.3's "assert the returned value is \"value\"") —
// either means the backend is not the one this engine was built against.
func (sh *Shard) finishJob(entry *sched.Entry, bs *shardJob, res coro.Result) {
	if res.Err != nil {
		panic(NewShardError("BACKEND_GET", sh.cfg.ID, ErrCodeBackendError, res.Err.Error()))
	}
	if res.Value != expectedBackendValue {
		panic(NewShardError("BACKEND_GET", sh.cfg.ID, ErrCodeBackendError, fmt.Sprintf("backend returned value %q, want %q", res.Value, expectedBackendValue)))
	}

	BuildReply(bs.tx.Buf.Data[:HeaderSize], bs.reqHdr)
	bs.tx.Buf.Len = HeaderSize
	bs.tx.Addr = bs.rx.Addr

	sh.pendingReturn = append(sh.pendingReturn, bs.rx)
	sh.pendingTX = append(sh.pendingTX, bs.tx)
	sh.idle = append(sh.idle, sh.slots[entry.SlotID])
	delete(sh.busy, entry.SlotID)

	latencyNs := uint64(time.Since(bs.startedAt).Nanoseconds())
	sh.cfg.Observer.ObserveJob(latencyNs, false, true)
}

// dispatchIntake implements §4.2 step 2: pull fresh RX buffers off the
// dispatch ring and bind each to an idle coroutine slot. Each buffer is
// validated before it ever reaches a coroutine: destination MAC, EtherType,
// destination IP, and next-protocol must all match this shard's own bound
// address, the direct translation of the original's check_eth_hdr/
// check_ip_hdr pair run from process_rx_mbuf; a mismatch on any field drops
// the packet into the return batch instead of parsing its app header.
func (sh *Shard) dispatchIntake(force bool) {
	if !force && sh.quantaSinceIntake < sh.cfg.DispatchDequeuePeriod {
		return
	}
	if len(sh.idle) == 0 {
		return
	}

	n := len(sh.idle)
	if n > sh.cfg.DispatchBurst {
		n = sh.cfg.DispatchBurst
	}
	pkts := sh.cfg.DispatchRing.PopBurst(n)
	for _, pkt := range pkts {
		if !sh.validAddress(pkt) {
			sh.pendingReturn = append(sh.pendingReturn, pkt)
			continue
		}
		hdr, err := ParseRequestHeader(pkt.Payload())
		if err != nil {
			sh.pendingReturn = append(sh.pendingReturn, pkt)
			continue
		}
		if hdr.ReqType != ReqTypePointGet {
			panic(NewShardError("DISPATCH_INTAKE", sh.cfg.ID, ErrCodeInvariant, fmt.Sprintf("unknown request kind %d", hdr.ReqType)))
		}

		slot := sh.idle[len(sh.idle)-1]
		sh.idle = sh.idle[:len(sh.idle)-1]

		tx := sh.cfg.Ring.AllocTX()
		if tx == nil {
			panic(NewShardError("ALLOC_TX", sh.cfg.ID, ErrCodePoolExhausted, "TX pool exhausted"))
		}

		sh.busy[slot.ID()] = &shardJob{
			rx:        pkt,
			tx:        tx,
			job:       coro.Job{PacketID: hdr.ID, Key: hdr.Key()},
			reqHdr:    hdr,
			governor:  sh.newGovernor(),
			startedAt: time.Now(),
		}
		sh.runQ.Push(&sched.Entry{SlotID: slot.ID()})
	}
	sh.quantaSinceIntake = 0
}

// validAddress mirrors check_eth_hdr + check_ip_hdr: the packet must be
// addressed to this shard's own MAC/IP over IPv4/UDP, or it is not one of
// ours to answer.
func (sh *Shard) validAddress(pkt *nic.Packet) bool {
	return pkt.DstMAC == sh.localMAC &&
		pkt.EtherType == nic.EtherTypeIPv4 &&
		pkt.DstIP.Equal(sh.localIP) &&
		pkt.NextProto == nic.ProtoUDP
}

func (sh *Shard) newGovernor() preempt.Governor {
	if sh.cfg.EmptyHandler {
		return preempt.NewEmptyGovernor()
	}
	if sh.cfg.Discipline == sched.LAS {
		return preempt.NewLASGovernor(sh.cfg.Quantum, 1)
	}
	return preempt.NewQuantumGovernor(sh.cfg.Quantum)
}

// flushTX implements §4.2 step 3.
func (sh *Shard) flushTX(force bool) {
	if len(sh.pendingTX) == 0 {
		return
	}
	if !force && len(sh.pendingTX) < sh.cfg.TXBurst {
		return
	}
	n, err := sh.cfg.Ring.SendBurst(sh.pendingTX)
	if err != nil {
		sh.cfg.Logger.Errorf("shard %d: TX burst error: %v", sh.cfg.ID, err)
	}
	if n < len(sh.pendingTX) {
		sh.cfg.Logger.Errorf("shard %d: short TX burst: sent %d/%d", sh.cfg.ID, n, len(sh.pendingTX))
	}
	for i := 0; i < n; i++ {
		sh.cfg.Observer.ObserveReply()
	}
	sh.pendingTX = sh.pendingTX[:0]
}

// flushReturn implements §4.2 step 4. A short return-ring enqueue is fatal
// (§7): it means an RX buffer's ownership was silently lost.
func (sh *Shard) flushReturn(force bool) {
	if len(sh.pendingReturn) == 0 {
		return
	}
	if !force && len(sh.pendingReturn) < sh.cfg.ReturnBurst {
		return
	}
	n := sh.cfg.ReturnRing.PushBurst(sh.pendingReturn)
	if n < len(sh.pendingReturn) {
		panic(NewShardError("RETURN_RING", sh.cfg.ID, ErrCodeRingFull, "short return-ring enqueue"))
	}
	sh.pendingReturn = sh.pendingReturn[:0]
}

// makeBody builds the coroutine body bound to slotID. It simulates the
// preemption governor's quantum ticking (§4.2 "Preemption contract") over
// job.Work ticks before making the coroutine's single real backend call —
// the substitution the spec's design notes sanction for a language without
// async-signal delivery into another goroutine's stack.
func (sh *Shard) makeBody(slotID int) coro.Body {
	return func(ctx context.Context, job coro.Job, yield func()) coro.Result {
		work := job.Work
		if work == 0 {
			work = 1
		}
		const chunk = 64
		for ticked := uint64(0); ticked < work; {
			step := work - ticked
			if step > chunk {
				step = chunk
			}
			bs := sh.busy[slotID]
			if bs.governor.Tick(step) {
				yield()
			}
			ticked += step
		}

		val, err := sh.cfg.Backend.Get(ctx, job.Key)
		return coro.Result{Value: val, Err: err}
	}
}

// noOpLogger satisfies Logger when no logger is configured.
type noOpLogger struct{}

func (noOpLogger) Printf(string, ...interface{}) {}
func (noOpLogger) Debugf(string, ...interface{}) {}
func (noOpLogger) Infof(string, ...interface{})  {}
func (noOpLogger) Errorf(string, ...interface{}) {}
