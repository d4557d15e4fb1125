package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/goccy/go-json"

	"github.com/multios/introspect/internal/memory"
	"github.com/multios/introspect/internal/storageprovider"
	"github.com/multios/introspect/internal/storageutil"
)

// download fetches archived snapshots and writes them out as plain JSON
// under <root>/<process id>/<snapshot id>.json, skipping files that are
// already there.
func download(archive storageutil.ObjectHandler, root string, objects chan string, errorsChan chan error, wg *sync.WaitGroup) {
	defer wg.Done()

	for objectName := range objects {
		parts := strings.Split(objectName, "/")
		if len(parts) != 2 {
			errorsChan <- fmt.Errorf("not a <process id>/<snapshot id> archive path: %q", objectName)
			continue
		}
		dirPath := fmt.Sprintf("%s/%s", root, parts[0])

		if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
			err := os.MkdirAll(dirPath, 0755)
			if err != nil {
				errorsChan <- err
				continue
			}
		}

		path := fmt.Sprintf("%s/%s.json", dirPath, parts[1])
		if _, err := os.Stat(path); err == nil {
			continue
		}

		var snapshot memory.Snapshot
		err := storageutil.UnmarshalCompressed(context.Background(), archive, objectName, &snapshot)
		if err != nil {
			errorsChan <- err
			continue
		}

		b, err := json.Marshal(snapshot)
		if err != nil {
			errorsChan <- err
			continue
		}

		if err := os.WriteFile(path, b, 0644); err != nil {
			errorsChan <- err
			continue
		}

		log.Println(objectName)
	}
}

func main() {
	args := os.Args[1:]
	if len(args) != 2 {
		fmt.Println("./downloader <file of relative archive paths> <destination directory>")
		return
	}

	bucket, ok := os.LookupEnv("INTROSPECT_SNAPSHOTS_BUCKET")
	if !ok {
		log.Fatal("INTROSPECT_SNAPSHOTS_BUCKET env var was not set")
	}

	ctx := context.Background()
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer storageClient.Close()

	archive := &storageprovider.Gcs{BucketHandle: storageClient.Bucket(bucket)}

	objectPathList := args[0]
	destination := args[1]
	file, err := os.Open(objectPathList)
	if err != nil {
		log.Fatal(err)
	}
	defer file.Close()

	var wg sync.WaitGroup

	objects := make(chan string)
	errorsChan := make(chan error)
	for i := 0; i < 128; i++ {
		wg.Add(1)
		go download(archive, destination, objects, errorsChan, &wg)
	}

	go func() {
		for err := range errorsChan {
			log.Println(err)
		}
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		objects <- scanner.Text()
	}

	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}

	close(objects)
	wg.Wait()
	close(errorsChan)
}
