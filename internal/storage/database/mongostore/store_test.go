package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/storage/database"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// newTestRepos 需要 MONGO_TEST_URI, 每個測試使用獨立資料庫.
func newTestRepos(t *testing.T) *database.Repositories {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skipf("未設定 MONGO_TEST_URI, 跳過 MongoDB 整合測試")
	}
	logger.SetOutput(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("連接 MongoDB 失敗: %v", err)
	}
	db := client.Database("simple_chat_test_" + uuid.NewString()[:8])

	repos, err := New(ctx, db)
	if err != nil {
		t.Fatalf("建立倉儲失敗: %v", err)
	}
	if err := repos.Ping(ctx); err != nil {
		t.Skipf("MongoDB 無法連線: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = repos.Close(context.Background())
	})
	return repos
}

func TestThreadStore_UniquePairKey(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	if err := repos.Threads.Create(ctx, domain.NewThread("t1", "u1", "u2", base)); err != nil {
		t.Fatalf("創建對話失敗: %v", err)
	}
	err := repos.Threads.Create(ctx, domain.NewThread("t2", "u2", "u1", base))
	if !errors.Is(err, database.ErrDuplicate) {
		t.Errorf("期望 ErrDuplicate, 得到 %v", err)
	}

	th, err := repos.Threads.GetByPairKey(ctx, domain.PairKey("u1", "u2"))
	if err != nil {
		t.Fatalf("查詢對話失敗: %v", err)
	}
	if th.ID != "t1" {
		t.Errorf("對話 ID 錯誤: %s", th.ID)
	}
}

func TestMessageStore_AppendAndRead(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	if err := repos.Threads.Create(ctx, domain.NewThread("t1", "u1", "u2", base)); err != nil {
		t.Fatalf("創建對話失敗: %v", err)
	}
	for i := 0; i < 3; i++ {
		m := &domain.Message{
			ID:               fmt.Sprintf("m%d", i),
			ThreadID:         "t1",
			SenderID:         "u1",
			Content:          "hi",
			SentAt:           base.Add(time.Duration(i) * time.Minute),
			ChannelMessageID: fmt.Sprintf("rm%d", i),
			Kind:             domain.MessageKindText,
		}
		if err := repos.Messages.Append(ctx, m); err != nil {
			t.Fatalf("寫入訊息失敗: %v", err)
		}
	}

	dup := &domain.Message{ID: "dup", ThreadID: "t1", SenderID: "u1", Content: "x", SentAt: base, ChannelMessageID: "rm1"}
	if err := repos.Messages.Append(ctx, dup); !errors.Is(err, database.ErrDuplicate) {
		t.Errorf("期望 ErrDuplicate, 得到 %v", err)
	}

	th, err := repos.Threads.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("查詢對話失敗: %v", err)
	}
	if th.LastMessageAt == nil || !th.LastMessageAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("LastMessageAt 錯誤: %v", th.LastMessageAt)
	}

	count, err := repos.Messages.CountUnread(ctx, "t1", "u2")
	if err != nil || count != 3 {
		t.Fatalf("未讀數量錯誤: %d, %v", count, err)
	}
	n, err := repos.Messages.MarkRead(ctx, "t1", "u2", base.Add(time.Hour))
	if err != nil || n != 3 {
		t.Fatalf("標記已讀錯誤: %d, %v", n, err)
	}
	n, err = repos.Messages.MarkRead(ctx, "t1", "u2", base.Add(2*time.Hour))
	if err != nil || n != 0 {
		t.Errorf("重複標記不應新增回執: %d, %v", n, err)
	}

	receipts, err := repos.Messages.ReceiptsFor(ctx, []string{"m0"})
	if err != nil {
		t.Fatalf("查詢回執失敗: %v", err)
	}
	if len(receipts["m0"]) != 1 || receipts["m0"][0].UserID != "u2" {
		t.Errorf("回執錯誤: %+v", receipts["m0"])
	}
}

func TestUserStore_SearchEscapesRegex(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	for _, u := range []*domain.User{
		{ID: "u1", Email: "alice@example.com", DisplayName: "Alice"},
		{ID: "u2", Email: "bob@example.com", DisplayName: "B.o.b"},
	} {
		if err := repos.Users.Create(ctx, u); err != nil {
			t.Fatalf("創建使用者失敗: %v", err)
		}
	}

	found, err := repos.Users.Search(ctx, ".", 20)
	if err != nil {
		t.Fatalf("搜尋失敗: %v", err)
	}
	// "." 為字面字元, 兩個 email 都包含.
	if len(found) != 2 {
		t.Errorf("搜尋結果數量錯誤: %d", len(found))
	}

	found, err = repos.Users.Search(ctx, "b.o", 20)
	if err != nil {
		t.Fatalf("搜尋失敗: %v", err)
	}
	if len(found) != 1 || found[0].ID != "u2" {
		t.Errorf("搜尋結果錯誤: %+v", found)
	}
}

func TestDocuments_RoundTrip(t *testing.T) {
	last := base.Add(time.Minute)
	th := &domain.Thread{ID: "t1", UserA: "a", UserB: "b", PairKey: "a:b", CreatedAt: base, LastMessageAt: &last, IsActive: true}
	td := newThreadDocument(th)
	got := td.toDomain()
	if got.PairKey != "a:b" || got.LastMessageAt == nil || !got.LastMessageAt.Equal(last) {
		t.Errorf("對話轉換錯誤: %+v", got)
	}

	u := &domain.User{ID: "u1", Email: "a@example.com", ExternalSubject: "sub", ChannelIdentity: "8:acs:x"}
	ud := newUserDocument(u)
	if back := ud.toDomain(); back.ExternalSubject != "sub" || back.ChannelIdentity != "8:acs:x" {
		t.Errorf("使用者轉換錯誤: %+v", back)
	}
}

func TestTranslate(t *testing.T) {
	if !errors.Is(translate(mongo.ErrNoDocuments), database.ErrNotFound) {
		t.Error("ErrNoDocuments 應轉成 ErrNotFound")
	}
	if translate(nil) != nil {
		t.Error("nil 應維持 nil")
	}
	other := errors.New("boom")
	if !errors.Is(translate(other), other) {
		t.Error("其他錯誤應原樣回傳")
	}
}

func TestSafeRegexQuery(t *testing.T) {
	q := safeRegexQuery("a.b*")
	if q["$regex"] != `a\.b\*` {
		t.Errorf("正則未轉義: %v", q["$regex"])
	}
	if q["$options"] != "i" {
		t.Errorf("應不區分大小寫: %v", q["$options"])
	}
}
