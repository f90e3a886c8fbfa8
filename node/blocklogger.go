// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/btcrelay/peerd/wire"
)

// blockProgressLogger throttles per-block accept logging to one summary
// line every 10 seconds, the same cadence and shape as the teacher's
// blockmanager progress logger, adapted here since Dispatcher.onBlock is
// this module's equivalent of the teacher's blockManager.handleBlockMsg.
type blockProgressLogger struct {
	mtx sync.Mutex

	receivedBlocks int64
	receivedTx     int64
	lastLogTime    time.Time

	logger btclog.Logger
	action string
}

func newBlockProgressLogger(action string, logger btclog.Logger) *blockProgressLogger {
	return &blockProgressLogger{
		lastLogTime: time.Now(),
		action:      action,
		logger:      logger,
	}
}

// logBlockAccepted records one more accepted block and, once 10 seconds
// have passed since the last summary, emits a throttled progress line.
func (b *blockProgressLogger) logBlockAccepted(block *wire.MsgBlock, height int32) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.receivedBlocks++
	b.receivedTx += int64(len(block.Transactions))

	now := time.Now()
	duration := now.Sub(b.lastLogTime)
	if duration < 10*time.Second {
		return
	}

	durationMillis := int64(duration / time.Millisecond)
	tDuration := 10 * time.Millisecond * time.Duration(durationMillis/10)

	blockStr := "blocks"
	if b.receivedBlocks == 1 {
		blockStr = "block"
	}
	txStr := "transactions"
	if b.receivedTx == 1 {
		txStr = "transaction"
	}

	b.logger.Infof("%s %d %s in the last %s (%d %s, height %d, %s)",
		b.action, b.receivedBlocks, blockStr, tDuration, b.receivedTx, txStr,
		height, block.Header.Timestamp)

	b.receivedBlocks = 0
	b.receivedTx = 0
	b.lastLogTime = now
}
