// Package upload sends payloads to object storage through an upload endpoint
// served by the upload/server package, without holding storage credentials.
//
// Small payloads go up in one presigned PUT. Large payloads are split into
// parts that are sent in parallel to per-part presigned URLs and then
// assembled by the endpoint:
//
//	uploader := upload.New("https://app.example.com/api/upload")
//	resp, err := uploader.Upload(ctx, "videos/launch.mp4", file, size, upload.Options{
//	    MultipartThreshold: 100 << 20,
//	    OnProgress: func(p storagetypes.UploadProgress) {
//	        fmt.Printf("%d%%\n", p.Percentage)
//	    },
//	})
//
// Batch uploads several files at once and keeps per-file state.
package upload
