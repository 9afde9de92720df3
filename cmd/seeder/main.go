package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/carebuddy"
	"github.com/poiesic/carebuddy/core"
)

// sampleDocuments is guidance a care team might upload, keyed by document ID.
var sampleDocuments = map[string]string{
	"hypertension-basics": `Managing high blood pressure

Take your blood pressure medication at the same time every morning, even when you feel well. Do not stop taking it without talking to your doctor.

Limit salt to less than one teaspoon a day. Read food labels and avoid processed meats, canned soups and salty snacks.

Check your blood pressure at home twice a week and write down the readings. Bring the log to every appointment.`,

	"type2-diabetes-care": `Living with type 2 diabetes

Check your blood sugar before breakfast and two hours after dinner. A fasting reading between 80 and 130 is the usual target.

Take metformin with meals to reduce stomach upset. If you miss a dose, skip it and take the next one at the normal time.

Inspect your feet every evening for cuts, blisters or redness. Call the clinic if a sore does not start healing within two days.`,

	"post-surgery-recovery": `After your knee surgery

Keep the dressing clean and dry for the first five days. You may shower after the staples are removed.

Walk for ten minutes every two hours while awake to prevent blood clots. Increase the distance a little each day.

Call the clinic immediately if you notice a fever above 38 degrees, increasing redness around the wound, or calf pain and swelling.`,

	"asthma-action-plan": `Asthma action plan

Use your preventer inhaler every morning and evening, even when you have no symptoms. Rinse your mouth afterwards.

Use your reliever inhaler when you cough, wheeze or feel tight in the chest. If you need it more than three times a week, book a review.

If the reliever does not help within ten minutes, or you cannot speak in full sentences, call emergency services.`,

	"medication-safety": `Medication safety

Patients with condition X should take medication Y twice daily, with breakfast and with dinner.

Keep an up-to-date list of every medicine you take, including vitamins and herbal products, and show it to each doctor you see.

Do not drink grapefruit juice while taking statins. Ask your pharmacist before starting any over-the-counter painkiller.`,
}

var (
	srcPath   = flag.String("src", "", "file or directory of documents to seed (.txt, .md, .pdf)")
	dbPath    = flag.String("db", "./carebuddy_db", "path to BadgerDB database directory")
	namespace = flag.String("namespace", core.DefaultNamespace, "index namespace")
	buddyID   = flag.String("buddy", "", "care buddy that owns the seeded documents")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// filesUnder returns an iterator over the regular files at or below root.
func filesUnder(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !yield(path, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// seedFiles ingests every file under root one at a time.
func seedFiles(ctx context.Context, svc *carebuddy.Service, root string) error {
	for path, err := range filesUnder(root) {
		if err != nil {
			return err
		}
		doc := &core.Document{
			ID:         filepath.Base(path),
			BuddyID:    *buddyID,
			UploadedAt: time.Now().UTC(),
		}
		if _, err := svc.IngestFile(ctx, path, doc); err != nil {
			slog.Warn("skipping document", "path", path, "err", err)
		}
	}
	return nil
}

// seedSamples ingests the built-in documents concurrently.
func seedSamples(ctx context.Context, svc *carebuddy.Service) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for id, text := range sampleDocuments {
		doc := &core.Document{ID: id, BuddyID: *buddyID, Text: text, UploadedAt: time.Now().UTC()}
		wg.Add(1)
		err := svc.Pipeline().Submit(ctx, doc, func(n int, err error) {
			defer wg.Done()
			if err != nil {
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			return err
		}
	}
	wg.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("failed to seed %d documents: %v", len(failed), failed)
	}
	return nil
}

func main() {
	svc, err := carebuddy.NewService(*dbPath, carebuddy.WithNamespace(*namespace))
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	ctx := context.Background()

	if *srcPath != "" {
		err = seedFiles(ctx, svc, *srcPath)
	} else {
		err = seedSamples(ctx, svc)
	}
	if err != nil {
		panic(err)
	}
}
