package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"bitbucket.org/mmdatafocus/backoffice_backend/workflow"
)

func TestFulfillmentCheckUncheckRestoresStock(t *testing.T) {
	ctx := setupIntegration(t)

	product, internal := seedProductAndSource(t, ctx, "Shampoo 1L", 50)

	record, err := models.CreateJobRecord(ctx, &models.NewJobRecord{
		Title: "Morning restock",
		LineItems: []*models.NewLineItem{
			{ProductId: &product.ID, SourceId: internal.ID, Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateJobRecord: %v", err)
	}
	item := record.LineItems[0]

	checked, err := workflow.CheckItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("CheckItem: %v", err)
	}
	if checked.IsChecked == nil || !*checked.IsChecked {
		t.Fatalf("item must be checked")
	}
	if checked.QuantityFound == nil || *checked.QuantityFound != 10 {
		t.Fatalf("quantity_found must default to the full quantity, got %v", checked.QuantityFound)
	}
	assertStock(t, ctx, product.ID, 40)

	// Second check on a fully fulfilled item fails and moves no stock.
	if _, err := workflow.CheckItem(ctx, item.ID); !errors.Is(err, workflow.ErrAlreadyComplete) {
		t.Fatalf("expected ErrAlreadyComplete, got %v", err)
	}
	assertStock(t, ctx, product.ID, 40)

	unchecked, err := workflow.UncheckItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("UncheckItem: %v", err)
	}
	if unchecked.IsChecked != nil && *unchecked.IsChecked {
		t.Fatalf("item must be unchecked")
	}
	assertStock(t, ctx, product.ID, 50)

	if _, err := workflow.UncheckItem(ctx, item.ID); !errors.Is(err, workflow.ErrNotChecked) {
		t.Fatalf("expected ErrNotChecked, got %v", err)
	}
}

func TestFulfillmentPartialCheckThenComplete(t *testing.T) {
	ctx := setupIntegration(t)

	product, internal := seedProductAndSource(t, ctx, "Conditioner 1L", 50)

	record, err := models.CreateJobRecord(ctx, &models.NewJobRecord{
		Title: "Partial restock",
		LineItems: []*models.NewLineItem{
			{ProductId: &product.ID, SourceId: internal.ID, Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateJobRecord: %v", err)
	}
	item := record.LineItems[0]

	found := 7
	if _, err := workflow.EditItem(ctx, item.ID, &workflow.EditLineItemInput{QuantityFound: &found}); err != nil {
		t.Fatalf("EditItem: %v", err)
	}

	checked, err := workflow.CheckItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("CheckItem: %v", err)
	}
	if *checked.QuantityFound != 7 || *checked.QuantityMissing != 3 {
		t.Fatalf("expected found=7 missing=3, got %v/%v", *checked.QuantityFound, *checked.QuantityMissing)
	}
	// Debit is the full required quantity, not the found quantity.
	assertStock(t, ctx, product.ID, 40)

	// Checked items are immutable via Edit.
	q := 5
	if _, err := workflow.EditItem(ctx, item.ID, &workflow.EditLineItemInput{Quantity: &q}); !errors.Is(err, workflow.ErrItemLocked) {
		t.Fatalf("expected ErrItemLocked, got %v", err)
	}

	// Completing the remainder moves no stock.
	completed, err := workflow.CheckItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("CheckItem (complete remainder): %v", err)
	}
	if *completed.QuantityFound != 10 || *completed.QuantityMissing != 0 {
		t.Fatalf("expected found=10 missing=0, got %v/%v", *completed.QuantityFound, *completed.QuantityMissing)
	}
	assertStock(t, ctx, product.ID, 40)
}

func TestFulfillmentSplitAndDelete(t *testing.T) {
	ctx := setupIntegration(t)

	product, internal := seedProductAndSource(t, ctx, "Hair Oil 250ml", 30)

	record, err := models.CreateJobRecord(ctx, &models.NewJobRecord{
		Title: "Split run",
		LineItems: []*models.NewLineItem{
			{ProductId: &product.ID, SourceId: internal.ID, Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateJobRecord: %v", err)
	}
	item := record.LineItems[0]

	// Open split 10 -> 6 + 4, no stock movement.
	splitRecord, err := workflow.SplitItem(ctx, item.ID, 4)
	if err != nil {
		t.Fatalf("SplitItem: %v", err)
	}
	if len(splitRecord.LineItems) != 2 {
		t.Fatalf("expected 2 line items after split, got %d", len(splitRecord.LineItems))
	}
	total := 0
	for _, li := range splitRecord.LineItems {
		total += li.Quantity
		if li.IsChecked != nil && *li.IsChecked {
			t.Fatalf("Open split must leave both items unchecked")
		}
	}
	if total != 10 {
		t.Fatalf("split quantities must sum to 10, got %d", total)
	}
	assertStock(t, ctx, product.ID, 30)

	// Delete one sibling: exactly one deletion log entry, row gone.
	var sibling *models.LineItem
	for _, li := range splitRecord.LineItems {
		if li.ID != item.ID {
			sibling = li
		}
	}
	reason := "not needed"
	if err := workflow.DeleteItem(ctx, sibling.ID, &reason); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	entries, err := models.ListDeletionLogEntries(ctx, record.ID)
	if err != nil {
		t.Fatalf("ListDeletionLogEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 deletion log entry, got %d", len(entries))
	}
	if entries[0].ItemName != "Hair Oil 250ml" || entries[0].Quantity != sibling.Quantity {
		t.Fatalf("deletion log must capture the item snapshot: %+v", entries[0])
	}
	if err := workflow.DeleteItem(ctx, sibling.ID, nil); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on re-delete, got %v", err)
	}
}

func TestFulfillmentPartialSplit(t *testing.T) {
	ctx := setupIntegration(t)

	product, internal := seedProductAndSource(t, ctx, "Towel Pack", 100)

	record, err := models.CreateJobRecord(ctx, &models.NewJobRecord{
		Title: "Partial split",
		LineItems: []*models.NewLineItem{
			{ProductId: &product.ID, SourceId: internal.ID, Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateJobRecord: %v", err)
	}
	item := record.LineItems[0]

	found := 6
	if _, err := workflow.EditItem(ctx, item.ID, &workflow.EditLineItemInput{QuantityFound: &found}); err != nil {
		t.Fatalf("EditItem: %v", err)
	}
	if _, err := workflow.CheckItem(ctx, item.ID); err != nil {
		t.Fatalf("CheckItem: %v", err)
	}

	splitRecord, err := workflow.SplitItem(ctx, item.ID, 0)
	if err != nil {
		t.Fatalf("SplitItem (partial): %v", err)
	}
	var full, open *models.LineItem
	for _, li := range splitRecord.LineItems {
		if li.IsChecked != nil && *li.IsChecked {
			full = li
		} else {
			open = li
		}
	}
	if full == nil || open == nil {
		t.Fatalf("expected one fulfilled and one open item after partial split")
	}
	if full.Quantity != 6 || full.QuantityFound == nil || *full.QuantityFound != 6 {
		t.Fatalf("fulfilled side must be quantity=found=6: %+v", full)
	}
	if full.QuantityMissing == nil || *full.QuantityMissing != 0 {
		t.Fatalf("fulfilled side must have no shortfall: %+v", full)
	}
	if open.Quantity != 4 {
		t.Fatalf("open side must carry the shortfall of 4, got %d", open.Quantity)
	}

	// Already fully fulfilled: further splits fail.
	if _, err := workflow.SplitItem(ctx, full.ID, 3); !errors.Is(err, workflow.ErrNotSplittable) {
		t.Fatalf("expected ErrNotSplittable, got %v", err)
	}
}

func TestViewLogDedupWindow(t *testing.T) {
	ctx := setupIntegration(t)

	record, err := models.CreateJobRecord(ctx, &models.NewJobRecord{Title: "View target"})
	if err != nil {
		t.Fatalf("CreateJobRecord: %v", err)
	}

	if err := models.RecordJobView(ctx, record.ID, 1); err != nil {
		t.Fatalf("RecordJobView: %v", err)
	}
	if err := models.RecordJobView(ctx, record.ID, 1); err != nil {
		t.Fatalf("RecordJobView (dedup): %v", err)
	}
	views, err := models.ListJobRecordViews(ctx, record.ID)
	if err != nil {
		t.Fatalf("ListJobRecordViews: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view entry inside the window, got %d", len(views))
	}
}

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "backoffice_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func seedProductAndSource(t *testing.T, ctx context.Context, name string, stock int) (*models.Product, *models.Source) {
	t.Helper()
	product, err := models.CreateProduct(ctx, &models.NewProduct{Name: name, CurrentStock: stock, Unit: "pcs"})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	source, err := models.CreateSource(ctx, &models.NewSource{Name: "Store " + name, Type: models.SourceTypeInternal})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	return product, source
}

func assertStock(t *testing.T, ctx context.Context, productId int, want int) {
	t.Helper()
	product, err := utils.FetchModel[models.Product](ctx, productId)
	if err != nil {
		t.Fatalf("fetch product: %v", err)
	}
	if product.CurrentStock != want {
		t.Fatalf("expected stock=%d, got %d", want, product.CurrentStock)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("backoffice-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("backoffice-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=backoffice_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
