package storage

import (
	"context"
	"time"

	"ChatRelay/service/bus"
	errs "ChatRelay/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConf Mongo 连接配置
type MongoConf struct {
	URI      string
	Database string
	Timeout  time.Duration
}

func (c *MongoConf) norm() {
	if c.Database == "" {
		c.Database = "Chatapp"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// MongoStore chat.Storage 的 Mongo 实现。
// users 集合存 status/typing 标志，messages 集合存消息与已读集合。
type MongoStore struct {
	db      *mongo.Database
	timeout time.Duration
}

func NewMongoStore(ctx context.Context, conf MongoConf) (*MongoStore, error) {
	conf.norm()
	ctx, cancel := context.WithTimeout(ctx, conf.Timeout)
	defer cancel()

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, errs.WrapMsg(err, "mongo connect")
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, errs.WrapMsg(err, "mongo ping")
	}
	return &MongoStore{db: cli.Database(conf.Database), timeout: conf.Timeout}, nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// SetUserStatus 持久在线状态 "online" / "offline"
func (s *MongoStore) SetUserStatus(ctx context.Context, userID, status string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.Collection("users").UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"status": status}},
	)
	return errs.WrapMsg(err, "update user status")
}

// SetUserTyping typing 标志（尽力而为）
func (s *MongoStore) SetUserTyping(ctx context.Context, userID string, typing bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.Collection("users").UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"typing": typing}},
	)
	return errs.WrapMsg(err, "update user typing")
}

// AppendMessageReader $addToSet：同一 reader 重复追加不产生重复、不报错
func (s *MongoStore) AppendMessageReader(ctx context.Context, messageID, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.Collection("messages").UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"readBy": userID}},
	)
	return errs.WrapMsg(err, "append message reader")
}

// InsertMessage 消息整条落库，_id 由调用方生成
func (s *MongoStore) InsertMessage(ctx context.Context, rec *bus.MessageData) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := bson.M{
		"_id":       rec.ID,
		"roomId":    rec.RoomID,
		"senderId":  rec.SenderID,
		"content":   rec.Content,
		"createdAt": rec.CreatedAt,
		"readBy":    rec.ReadBy,
	}
	if _, err := s.db.Collection("messages").InsertOne(ctx, doc); err != nil {
		return "", errs.WrapMsg(err, "insert message")
	}
	return rec.ID, nil
}
