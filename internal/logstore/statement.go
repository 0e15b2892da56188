package logstore

import "github.com/vmihailenco/msgpack/v5"

// Statement 单条写语句（SQL + 参数），payload 的最小单元
type Statement struct {
	SQL  string        `msgpack:"sql"`
	Args []interface{} `msgpack:"args"`
}

// Batch 一个写批次：leader 上作为一个事务执行并整体序列化进日志
type Batch []Statement

// Encode 批次序列化为日志 payload（msgpack）
func (b Batch) Encode() ([]byte, error) { return msgpack.Marshal(b) }

// DecodeBatch 从日志 payload 还原批次
func DecodeBatch(payload []byte) (Batch, error) {
	var b Batch
	if err := msgpack.Unmarshal(payload, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// LogEntry 复制接口上的单条事务（id + 不透明 payload）
type LogEntry struct {
	ID      int64  `msgpack:"id"`
	Payload []byte `msgpack:"payload"`
}

// Snapshot 全量快照：截至 SnapshotID 的完整日志回放
type Snapshot struct {
	SnapshotID int64      `msgpack:"snapshot_id"`
	Records    []LogEntry `msgpack:"records"`
}

func EncodeEntries(entries []LogEntry) ([]byte, error) { return msgpack.Marshal(entries) }

func DecodeEntries(data []byte) ([]LogEntry, error) {
	var entries []LogEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func EncodeSnapshot(s *Snapshot) ([]byte, error) { return msgpack.Marshal(s) }

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
