package snowflake

import (
	"fmt"
	"sync"
	"time"
)

type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42
	timestampPos          = 64 - timestampLength                  // 22
	workerLength    int64 = 10                                    // 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12

	maxWorkerValue    = int64(1)<<workerLength - 1
	maxIncrementValue = int64(1)<<incrementLength - 1
)

// Node hands out ids for a single worker. Ids are unique per worker and
// increase with time, so ordering by id orders by creation.
type Node struct {
	mutex         sync.Mutex
	workerID      int64
	lastTimestamp int64
	lastIncrement int64
	now           func() time.Time
}

func NewNode(workerID int64) (*Node, error) {
	if workerID < 0 || workerID > maxWorkerValue {
		return nil, fmt.Errorf("worker ID value must be between 0 and %d", maxWorkerValue)
	}
	return &Node{workerID: workerID, now: time.Now}, nil
}

func (n *Node) Generate() (int64, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	timestamp := n.now().UnixMilli()
	if timestamp < n.lastTimestamp {
		// clock went backwards, keep issuing from the last known millisecond
		timestamp = n.lastTimestamp
	}

	if timestamp == n.lastTimestamp {
		n.lastIncrement++
		if n.lastIncrement > maxIncrementValue {
			return 0, fmt.Errorf("increment overflow after increment reached %d", n.lastIncrement)
		}
	} else {
		n.lastIncrement = 0
		n.lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | n.workerID<<workerPos | n.lastIncrement, nil
}

func Extract(snowflakeId int64) Snowflake {
	return Snowflake{
		Timestamp: snowflakeId >> timestampPos,
		WorkerID:  (snowflakeId >> workerPos) & maxWorkerValue,
		Increment: snowflakeId & maxIncrementValue,
	}
}

func ExtractTime(snowflakeId int64) time.Time {
	return time.UnixMilli(snowflakeId >> timestampPos)
}

var (
	defaultMutex sync.Mutex
	defaultNode  *Node
)

func Setup(workerID int64) error {
	defaultMutex.Lock()
	defer defaultMutex.Unlock()

	if defaultNode != nil {
		return fmt.Errorf("worker ID for snowflake generator has been already set")
	}

	node, err := NewNode(workerID)
	if err != nil {
		return err
	}
	defaultNode = node
	return nil
}

// Generate uses the node configured by Setup, falling back to worker 0.
func Generate() (int64, error) {
	defaultMutex.Lock()
	if defaultNode == nil {
		defaultNode, _ = NewNode(0)
	}
	node := defaultNode
	defaultMutex.Unlock()

	return node.Generate()
}
