package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/consumer"
	"github.com/helix-tools/ledger-go/notify"
	"github.com/helix-tools/ledger-go/producer"
	"github.com/helix-tools/ledger-go/types"
)

// Test data structure
type TestData struct {
	Products []Product `json:"products"`
}

type Product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

func fail(step string, err error) {
	fmt.Printf("❌ %s: %v\n", step, err)
	os.Exit(1)
}

func main() {
	fmt.Println("================================================================================")
	fmt.Println("  LEDGER END-TO-END TEST")
	fmt.Println("  Producer Upload → Listing → Consumer Purchase → Download")
	fmt.Println("================================================================================")
	fmt.Println("")

	ctx := context.Background()
	logger, err := zap.NewDevelopment()
	if err != nil {
		fail("Failed to init logger", err)
	}
	defer func() { _ = logger.Sync() }()

	// Both sides share the deployment; identities default to the caller ARN.
	producerCfg := types.Config{
		APIEndpoint:        os.Getenv("LEDGER_API_ENDPOINT"),
		AWSAccessKeyID:     os.Getenv("PRODUCER_AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("PRODUCER_AWS_SECRET_ACCESS_KEY"),
		Region:             "us-east-1",
		ContentBucket:      os.Getenv("LEDGER_CONTENT_BUCKET"),
		KMSKeyID:           os.Getenv("LEDGER_CONTENT_KMS_KEY_ID"),
	}

	consumerCfg := types.Config{
		APIEndpoint:        os.Getenv("LEDGER_API_ENDPOINT"),
		AWSAccessKeyID:     os.Getenv("CONSUMER_AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("CONSUMER_AWS_SECRET_ACCESS_KEY"),
		Region:             "us-east-1",
		ContentBucket:      os.Getenv("LEDGER_CONTENT_BUCKET"),
		QueueURL:           os.Getenv("LEDGER_EVENT_QUEUE_URL"),
	}

	// Step 1: Initialize Producer SDK
	fmt.Println("Step 1: Initialize Producer SDK")
	fmt.Println("--------------------------------------------------------------------------------")
	prod, err := producer.NewFromConfig(ctx, producerCfg, logger.Named("producer"))
	if err != nil {
		fail("Failed to initialize producer", err)
	}
	fmt.Printf("✅ Producer SDK initialized\n")
	fmt.Printf("   Identity: %s\n\n", prod.Identity())

	// Step 2: Create test dataset file
	fmt.Println("Step 2: Create Test Dataset")
	fmt.Println("--------------------------------------------------------------------------------")

	testData := TestData{
		Products: []Product{
			{ID: 1, Name: "Widget A", Price: 99.99, Stock: 150},
			{ID: 2, Name: "Widget B", Price: 149.99, Stock: 75},
			{ID: 3, Name: "Widget C", Price: 199.99, Stock: 30},
		},
	}

	tmpDir, err := os.MkdirTemp("", "ledger-e2e")
	if err != nil {
		fail("Failed to create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	testFilePath := filepath.Join(tmpDir, "e2e-test-data.json")
	jsonData, err := json.MarshalIndent(testData, "", "  ")
	if err != nil {
		fail("Failed to marshal test data", err)
	}
	if err := os.WriteFile(testFilePath, jsonData, 0o644); err != nil {
		fail("Failed to write test file", err)
	}

	fmt.Printf("✅ Test dataset created\n")
	fmt.Printf("   File: %s\n", testFilePath)
	fmt.Printf("   Size: %d bytes\n\n", len(jsonData))

	// Step 3: Upload and list dataset with Producer SDK
	fmt.Println("Step 3: Upload Dataset (Producer SDK)")
	fmt.Println("--------------------------------------------------------------------------------")

	opts := producer.NewUploadOptions(fmt.Sprintf("E2E test products %d", time.Now().Unix()), 1200)
	opts.CompressionLevel = 9
	upload, err := prod.UploadDataset(ctx, testFilePath, opts)
	if err != nil {
		fail("Failed to upload dataset", err)
	}

	fmt.Printf("✅ Dataset uploaded and listed\n")
	fmt.Printf("   Dataset ID: %d\n", upload.DatasetID)
	fmt.Printf("   Content hash: %s\n", upload.ContentHash)
	fmt.Printf("   S3: s3://%s/%s (%d bytes stored)\n\n", upload.Bucket, upload.Key, upload.StoredBytes)

	if err := prod.SetSubscriptionPrice(ctx, upload.DatasetID, 100); err != nil {
		fail("Failed to set subscription price", err)
	}

	// Step 4: Initialize Consumer SDK
	fmt.Println("Step 4: Initialize Consumer SDK")
	fmt.Println("--------------------------------------------------------------------------------")
	cons, err := consumer.NewFromConfig(ctx, consumerCfg, logger.Named("consumer"))
	if err != nil {
		fail("Failed to initialize consumer", err)
	}
	fmt.Printf("✅ Consumer SDK initialized\n")
	fmt.Printf("   Identity: %s\n\n", cons.Identity())

	// Step 5: Purchase
	fmt.Println("Step 5: Purchase Dataset (Consumer SDK)")
	fmt.Println("--------------------------------------------------------------------------------")
	receipt, err := cons.Purchase(ctx, upload.DatasetID)
	if err != nil {
		fail("Failed to purchase dataset", err)
	}
	fmt.Printf("✅ Purchased for %d (fee %d, seller %d)\n\n", receipt.Amount, receipt.Fee, receipt.SellerAmount)

	// Step 6: Download and verify
	fmt.Println("Step 6: Download Dataset (Consumer SDK)")
	fmt.Println("--------------------------------------------------------------------------------")
	outPath := filepath.Join(tmpDir, "e2e-download.json")
	download, err := cons.DownloadDataset(ctx, upload.DatasetID, outPath)
	if err != nil {
		fail("Failed to download dataset", err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		fail("Failed to read download", err)
	}
	if !bytes.Equal(got, jsonData) {
		fail("Downloaded content differs", fmt.Errorf("%d bytes vs %d", len(got), len(jsonData)))
	}
	fmt.Printf("✅ Downloaded %d bytes via %s, content verified\n\n", download.SizeBytes, download.Via)

	// Step 7: Subscribe
	fmt.Println("Step 7: Subscribe (Consumer SDK)")
	fmt.Println("--------------------------------------------------------------------------------")
	sub, err := cons.Subscribe(ctx, upload.DatasetID, 1)
	if err != nil {
		fail("Failed to subscribe", err)
	}
	fmt.Printf("✅ Subscribed until %s\n\n", sub.Subscription.EndTime.Format(time.RFC3339))

	// Step 8: Notifications
	if consumerCfg.QueueURL != "" {
		fmt.Println("Step 8: Poll Notifications (Consumer SDK)")
		fmt.Println("--------------------------------------------------------------------------------")
		notifications, err := cons.PollNotifications(ctx, notify.PollOptions{
			WaitTimeSeconds: 5,
			DatasetIDs:      []uint64{upload.DatasetID},
		})
		if err != nil {
			fail("Failed to poll notifications", err)
		}
		fmt.Printf("✅ Received %d notifications\n", len(notifications))
		for _, n := range notifications {
			fmt.Printf("   %s #%d\n", n.Event.Type, n.Event.Sequence)
		}
		fmt.Println("")
	}

	// Cleanup
	if err := cons.CancelSubscription(ctx, upload.DatasetID); err != nil {
		fmt.Printf("⚠️  Failed to cancel subscription: %v\n", err)
	}

	fmt.Println("================================================================================")
	fmt.Println("  ✅ LEDGER END-TO-END TEST COMPLETE!")
	fmt.Println("================================================================================")
	fmt.Printf("Test Dataset ID: %d\n", upload.DatasetID)
}
