package realtime

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

// PostsFromTransaction rebuilds the posts created by a confirmed transaction
// from its create_text_post / create_image_post instructions. Instructions
// for other programs or that fail to decode are skipped.
func PostsFromTransaction(programID solana.PublicKey, detail *rpc.TransactionDetail) ([]model.Post, error) {
	if detail == nil || detail.Failed {
		return nil, nil
	}
	tx, err := detail.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", detail.Signature, err)
	}

	var posts []model.Post
	for i := range tx.Message.Instructions {
		ci := &tx.Message.Instructions[i]
		program, err := tx.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil || !program.Equals(programID) {
			continue
		}
		ix, err := codec.DecodeInstruction(ci.Data)
		if err != nil || !ix.IsPostCreation() {
			continue
		}
		metas, err := ci.ResolveInstructionAccounts(&tx.Message)
		// post, user_profile, platform_treasury, author, system_program
		if err != nil || len(metas) < 4 {
			continue
		}
		kind := model.PostKindText
		if ix.Kind == codec.InstructionCreateImagePost {
			kind = model.PostKindImage
		}
		posts = append(posts, model.Post{
			Address:     metas[0].PublicKey,
			Author:      metas[3].PublicKey,
			Content:     ix.Content,
			Kind:        kind,
			ImageChunks: []solana.PublicKey{},
			ReplyTo:     ix.ReplyTo,
			Timestamp:   ix.Timestamp,
		})
	}
	return posts, nil
}
