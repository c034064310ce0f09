package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/datastore/fs"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

func newTestDatastore(t *testing.T) (*fs.Datastore, string, context.Context) {
	t.Helper()
	tmpDir := t.TempDir()
	return fs.NewFsDatastore(tmpDir), tmpDir, context.Background()
}

func createTestStructure(t *testing.T, tmpDir string, structure map[string][]string) {
	t.Helper()
	for dirPath, files := range structure {
		fullDirPath := filepath.Join(tmpDir, dirPath)
		require.NoError(t, os.MkdirAll(fullDirPath, 0o755))

		for _, fileName := range files {
			require.NoError(t, os.WriteFile(filepath.Join(fullDirPath, fileName), []byte("test content"), 0o644))
		}
	}
}

func TestWalkTreeSingleLevelDirectory(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{
		"photos": {"photo1.jpg", "photo2.png", "document.txt"},
	})

	tree, err := datastore.WalkTree(ctx, "photos")
	require.NoError(t, err)
	require.NotNil(t, tree)

	require.Equal(t, "photos", tree.Path)
	require.Len(t, tree.Children, 0)
	require.Len(t, tree.MediaFiles, 2) // only jpg and png
	require.ElementsMatch(t, []string{"photos/photo1.jpg", "photos/photo2.png"}, tree.MediaFiles)
	require.Nil(t, tree.Parent)
}

func TestWalkTreeMultiLevelNestedDirectory(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{
		"photos":                    {"root1.jpg", "root2.jpeg"},
		"photos/2023":               {"year1.jpg"},
		"photos/2023/summer":        {"vacation1.jpg", "vacation2.png", "notes.txt"},
		"photos/2023/summer/europe": {"paris.jpg", "rome.jpeg"},
		"photos/2023/winter":        {"skiing.jpg"},
		"photos/2023/winter/alps":   {"mountain1.jpg", "mountain2.JPG"},
		"photos/2024":               {"recent.jpg"},
		"photos/2024/work":          {"conference.jpg"},
		"photos/2024/work/projects": {"demo.jpg", "presentation.png"},
	})

	tree, err := datastore.WalkTree(ctx, "photos")
	require.NoError(t, err)
	require.NotNil(t, tree)

	require.Equal(t, "photos", tree.Path)
	require.Len(t, tree.MediaFiles, 2) // root1.jpg, root2.jpeg
	require.Len(t, tree.Children, 2)   // 2023, 2024

	var child2023 *entity.FolderNode
	for _, child := range tree.Children {
		if child.Path == "photos/2023" {
			child2023 = child
			break
		}
	}
	require.NotNil(t, child2023)
	require.Len(t, child2023.MediaFiles, 1) // year1.jpg
	require.Len(t, child2023.Children, 2)   // summer, winter
	require.Equal(t, tree, child2023.Parent)

	var summer *entity.FolderNode
	for _, child := range child2023.Children {
		if child.Path == "photos/2023/summer" {
			summer = child
			break
		}
	}
	require.NotNil(t, summer)
	require.Len(t, summer.MediaFiles, 2) // vacation1.jpg, vacation2.png (notes.txt excluded)
	require.Len(t, summer.Children, 1)   // europe
	require.Equal(t, child2023, summer.Parent)

	europe := summer.Children[0]
	require.Equal(t, "photos/2023/summer/europe", europe.Path)
	require.Len(t, europe.MediaFiles, 2) // paris.jpg, rome.jpeg
	require.Len(t, europe.Children, 0)
	require.Equal(t, summer, europe.Parent)

	require.Equal(t, 9, tree.GetTotalFolderCount())  // photos, 2023, summer, europe, winter, alps, 2024, work, projects
	require.Equal(t, 14, tree.GetTotalMediaCount())  // all jpg, jpeg, JPG, png files
}

func TestWalkTreeEmptyDirectory(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{"empty": {}})

	tree, err := datastore.WalkTree(ctx, "empty")
	require.NoError(t, err)
	require.NotNil(t, tree)
	require.Equal(t, "empty", tree.Path)
	require.Len(t, tree.Children, 0)
	require.Len(t, tree.MediaFiles, 0)
}

func TestWalkTreeDirectoryWithOnlySubdirectories(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{
		"folders":      {"document.txt"}, // non-media file
		"folders/sub1": {"readme.md"},
		"folders/sub2": {},
		"folders/sub3": {"config.json"},
	})

	tree, err := datastore.WalkTree(ctx, "folders")
	require.NoError(t, err)
	require.Equal(t, "folders", tree.Path)
	require.Len(t, tree.MediaFiles, 0)
	require.Len(t, tree.Children, 3) // sub1, sub2, sub3

	for _, child := range tree.Children {
		require.Len(t, child.MediaFiles, 0)
	}
}

func TestWalkTreeOnlyIncludesSupportedMediaFiles(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{
		"mixed": {
			"photo1.jpg",
			"photo2.JPEG",
			"photo3.png",
			"photo4.PNG",
			"video.mp4",
			"document.pdf",
			"archive.zip",
			"script.sh",
			"image.gif",
			"photo5.JPG",
		},
	})

	tree, err := datastore.WalkTree(ctx, "mixed")
	require.NoError(t, err)
	require.Len(t, tree.MediaFiles, 5)
	require.ElementsMatch(t, []string{
		"mixed/photo1.jpg", "mixed/photo2.JPEG", "mixed/photo3.png", "mixed/photo4.PNG", "mixed/photo5.JPG",
	}, tree.MediaFiles)
}

func TestWalkTreeErrorsOnMissingOrNonDirectoryPath(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)

	tree, err := datastore.WalkTree(ctx, "non-existent")
	require.Error(t, err)
	require.Nil(t, tree)
	require.Contains(t, err.Error(), "path does not exist")

	filePath := filepath.Join(tmpDir, "file.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("content"), 0o644))

	tree, err = datastore.WalkTree(ctx, "file.txt")
	require.Error(t, err)
	require.Nil(t, tree)
	require.Contains(t, err.Error(), "path is not a directory")
}

func TestWalkTreeMaintainsParentChildRelationships(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{
		"root":               {"root.jpg"},
		"root/level1":        {"level1.jpg"},
		"root/level1/level2": {"level2.jpg"},
	})

	tree, err := datastore.WalkTree(ctx, "root")
	require.NoError(t, err)

	level1 := tree.Children[0]
	require.Equal(t, tree, level1.Parent)

	level2 := level1.Children[0]
	require.Equal(t, level1, level2.Parent)

	require.Nil(t, tree.Parent)
}

func TestWalkTreeTraversalHelpers(t *testing.T) {
	datastore, tmpDir, ctx := newTestDatastore(t)
	createTestStructure(t, tmpDir, map[string][]string{
		"traverse":      {"1.jpg", "2.jpg"},
		"traverse/a":    {"a1.jpg"},
		"traverse/a/a1": {"a1a.jpg"},
		"traverse/b":    {"b1.jpg", "b2.jpg"},
	})

	tree, err := datastore.WalkTree(ctx, "traverse")
	require.NoError(t, err)

	require.Len(t, tree.GetAllNodes(), 4) // traverse, a, a1, b
	require.Equal(t, 4, tree.GetTotalFolderCount())
	require.Equal(t, 6, tree.GetTotalMediaCount()) // 2 + 1 + 1 + 2
}
