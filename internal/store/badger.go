package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// InMemory is the path that opens a store without touching disk.
const InMemory = ":memory:"

// BadgerStore keeps messages in BadgerDB under
// "msg:{chat}:{created_at_nanos}:{id}" so a prefix scan walks a chat in time
// order.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadger opens the database at path. InMemory selects an in-memory database.
func OpenBadger(path string, log *slog.Logger) (*BadgerStore, error) {
	options := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == InMemory {
		options = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

// OpenBadgerReadOnly opens the database at path for inspection while a
// server may hold it open.
func OpenBadgerReadOnly(path string, log *slog.Logger) (*BadgerStore, error) {
	options := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Append stores record. It is safe for concurrent use.
func (s *BadgerStore) Append(ctx context.Context, record chat.MessageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(record), value)
	})
}

// Recent returns up to limit of the latest messages of chatID, oldest first.
func (s *BadgerStore) Recent(ctx context.Context, chatID string, limit int) ([]chat.MessageRecord, error) {
	var records []chat.MessageRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := chatPrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// 19 nines sort after every padded timestamp of the chat
		for it.Seek(append(prefix, []byte("9999999999999999999")...)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(value []byte) error {
				record, err := decodeRecord(value)
				if err != nil {
					return err
				}
				// The prefix of "a" also covers chat "a:1"
				if record.ChatID == chatID {
					records = append(records, record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(records), nil
}

func chatPrefix(chatID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", chatID))
}

func messageKey(record chat.MessageRecord) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", record.ChatID, record.CreatedAt.UnixNano(), record.ID))
}

func encodeRecord(record chat.MessageRecord) ([]byte, error) {
	value, err := structpb.NewStruct(map[string]any{
		"id":        record.ID,
		"chatId":    record.ChatID,
		"senderId":  string(record.SenderID),
		"content":   record.Content,
		"createdAt": record.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", record.ID, err)
	}
	return proto.Marshal(value)
}

func decodeRecord(data []byte) (chat.MessageRecord, error) {
	value := &structpb.Struct{}
	if err := proto.Unmarshal(data, value); err != nil {
		return chat.MessageRecord{}, fmt.Errorf("decode message: %w", err)
	}
	fields := value.GetFields()
	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"].GetStringValue())
	if err != nil {
		return chat.MessageRecord{}, fmt.Errorf("decode message: %w", err)
	}
	return chat.MessageRecord{
		ID:        fields["id"].GetStringValue(),
		ChatID:    fields["chatId"].GetStringValue(),
		SenderID:  chat.Identity(fields["senderId"].GetStringValue()),
		Content:   fields["content"].GetStringValue(),
		CreatedAt: createdAt,
	}, nil
}
