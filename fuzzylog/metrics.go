package fuzzylog

import "github.com/deen17/fuzzylog/metrics"

var (
	snapshotRequestCounter = metrics.NewRegisteredCounter("fuzzylog/snapshot/request", nil)
	snapshotFinishedMeter  = metrics.NewRegisteredMeter("fuzzylog/snapshot/finished", nil)

	appendCounter      = metrics.NewRegisteredCounter("fuzzylog/append", nil)
	multiappendCounter = metrics.NewRegisteredCounter("fuzzylog/multiappend", nil)

	readIssuedMeter   = metrics.NewRegisteredMeter("fuzzylog/read/issued", nil)
	readOverreadMeter = metrics.NewRegisteredMeter("fuzzylog/read/overread", nil)
	readTimeoutMeter  = metrics.NewRegisteredMeter("fuzzylog/read/stuck", nil)

	deliveredMeter      = metrics.NewRegisteredMeter("fuzzylog/entry/delivered", nil)
	blindSearchGauge    = metrics.NewRegisteredGauge("fuzzylog/blindsearch/active", nil)
	blockerIndexGauge   = metrics.NewRegisteredGauge("fuzzylog/blocker/size", nil)
	pendingReassemGauge = metrics.NewRegisteredGauge("fuzzylog/reassembly/pending", nil)
)
