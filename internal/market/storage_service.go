package market

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filswan/go-mcs-sdk/mcs/api/bucket"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/filswan/go-mcs-sdk/mcs/api/user"
	"github.com/lagrangedao/go-compute-market/conf"
	"github.com/lagrangedao/go-compute-market/constants"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"golang.org/x/xerrors"
)

type StorageService struct {
	McsApiKey      string `json:"mcs_api_key"`
	McsAccessToken string `json:"mcs_access_token"`
	NetWork        string `json:"net_work"`
	BucketName     string `json:"bucket_name"`
}

func NewStorageService(c conf.MCS) (*StorageService, error) {
	if c.ApiKey == "" || c.BucketName == "" {
		return nil, xerrors.New("MCS.ApiKey and MCS.BucketName are required for snapshot upload")
	}
	return &StorageService{
		McsApiKey:      c.ApiKey,
		McsAccessToken: c.AccessToken,
		NetWork:        c.Network,
		BucketName:     c.BucketName,
	}, nil
}

func (storage *StorageService) UploadFileToBucket(objectName, filePath string, replace bool) (*bucket.OssFile, error) {
	logs.GetLogger().Infof("uploading file to bucket, objectName: %s, filePath: %s", objectName, filePath)
	mcsClient, err := user.LoginByApikey(storage.McsApiKey, storage.McsAccessToken, storage.NetWork)
	if err != nil {
		logs.GetLogger().Errorf("Failed creating mcsClient, error: %v", err)
		return nil, err
	}
	buketClient := bucket.GetBucketClient(*mcsClient)

	file, err := buketClient.GetFile(storage.BucketName, objectName)
	if err != nil && !strings.Contains(err.Error(), "record not found") {
		logs.GetLogger().Errorf("Failed get file form bucket, error: %v", err)
		return nil, err
	}

	if file != nil && replace {
		if err = buketClient.DeleteFile(storage.BucketName, objectName); err != nil {
			logs.GetLogger().Errorf("Failed delete file form bucket, error: %v", err)
			return nil, err
		}
	}

	if err := buketClient.UploadFile(storage.BucketName, objectName, filePath, replace); err != nil {
		logs.GetLogger().Errorf("Failed upload file to bucket, error: %v", err)
		return nil, err
	}

	mcsOssFile, err := buketClient.GetFile(storage.BucketName, objectName)
	if err != nil {
		logs.GetLogger().Errorf("Failed get file form bucket, error: %v", err)
		return nil, err
	}
	return mcsOssFile, nil
}

// ExportSnapshot writes the full ledger state to w as indented JSON.
func ExportSnapshot(ctx context.Context, l *ledger.Ledger, w io.Writer) (ledger.Snapshot, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return ledger.Snapshot{}, xerrors.Errorf("encoding snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotObjectName names the bucket object for a snapshot taken at t.
func SnapshotObjectName(nodeName string, t time.Time) string {
	if nodeName == "" {
		nodeName = "market"
	}
	return constants.SNAPSHOT_OBJECT_PREFIX + nodeName + "/" + t.UTC().Format("20060102T150405Z") + ".json"
}

// UploadSnapshot exports the ledger to a temporary file and pushes it to the bucket.
func (storage *StorageService) UploadSnapshot(ctx context.Context, l *ledger.Ledger, objectName string) (*bucket.OssFile, error) {
	dir, err := os.MkdirTemp("", "market-snapshot")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(objectName))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := ExportSnapshot(ctx, l, f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return storage.UploadFileToBucket(objectName, path, true)
}
