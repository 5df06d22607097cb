package tinyquanta

import "github.com/zhluo94/tinyquanta/internal/constants"

// Re-export the engine's fixed sizing and timing knobs for public API use.
const (
	NumShards               = constants.NumShards
	NumCorosPerShard        = constants.NumCorosPerShard
	DispatchRingSize        = constants.DispatchRingSize
	DispatchRingBurstSize   = constants.DispatchRingBurstSize
	DispatchDequeuePeriod   = constants.DispatchDequeuePeriod
	ReturnRingSize          = constants.ReturnRingSize
	ReturnRingBurstSize     = constants.ReturnRingBurstSize
	ReturnRingCheckinPeriod = constants.ReturnRingCheckinPeriod
	RXQueueBurstSize        = constants.RXQueueBurstSize
	TXQueueBurstSize        = constants.TXQueueBurstSize
	RXPoolSize              = constants.RXPoolSize
	RXPoolCacheSize         = constants.RXPoolCacheSize
	TXPoolSize              = constants.TXPoolSize
	TXPoolCacheSize         = constants.TXPoolCacheSize
	CoroStackSize           = constants.CoroStackSize
	DefaultQuantumCycles    = constants.DefaultQuantumCycles
	DefaultBaseCPU          = constants.DefaultBaseCPU
	ServerUDPPort           = constants.ServerUDPPort
)
