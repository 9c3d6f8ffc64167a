package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/resources"
	"github.com/keybrokerhq/keybroker/pkg/services"
)

type brokerHttpRoutes struct {
	svc services.BrokerService
}

func NewBrokerHttpRoutes(svc services.BrokerService) *brokerHttpRoutes {
	return &brokerHttpRoutes{
		svc: svc,
	}
}

type handleUriParams struct {
	ID string `uri:"id" binding:"required"`
}

func (r *brokerHttpRoutes) GetProviders(ctx *gin.Context) {
	providers, err := r.svc.GetProviders(ctx)
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, resources.GetProvidersResponse{
		Providers: providers,
	})
}

func (r *brokerHttpRoutes) GetHandles(ctx *gin.Context) {
	handles := []models.KeyHandle{}

	err := r.svc.GetHandles(ctx, services.GetHandlesInput{
		ApplyFunc: func(handle models.KeyHandle) {
			handles = append(handles, handle)
		},
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, resources.GetHandlesResponse{
		Handles: handles,
	})
}

func (r *brokerHttpRoutes) GetHandleByID(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	handle, err := r.svc.GetHandleByID(ctx, services.GetHandleByIDInput{
		HandleID:   params.ID,
		ProviderID: ctx.Query("provider_id"),
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, handle)
}

func (r *brokerHttpRoutes) CreateKeyHandle(ctx *gin.Context) {
	var requestBody resources.CreateKeyHandleBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	handle, err := r.svc.GenerateKey(ctx, services.GenerateKeyInput{
		Name:       requestBody.Name,
		ProviderID: requestBody.ProviderID,
		Algorithm:  requestBody.Algorithm,
		Size:       requestBody.Size,
		Usage:      requestBody.Usage,
		Metadata:   requestBody.Metadata,
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(201, handle)
}

func (r *brokerHttpRoutes) ImportKeyHandle(ctx *gin.Context) {
	var requestBody resources.ImportKeyHandleBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	if len(requestBody.PrivateKey) == 0 {
		ctx.JSON(400, gin.H{"err": "private key is required"})
		return
	}

	privKey, err := helpers.ParsePrivateKey(requestBody.PrivateKey)
	if err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	handle, err := r.svc.ImportKey(ctx, services.ImportKeyInput{
		Name:       requestBody.Name,
		ProviderID: requestBody.ProviderID,
		PrivateKey: privKey,
		Usage:      requestBody.Usage,
		Metadata:   requestBody.Metadata,
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(201, handle)
}

func (r *brokerHttpRoutes) DestroyHandle(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	handle, err := r.svc.DestroyHandle(ctx, services.DestroyHandleInput{
		HandleID:   params.ID,
		ProviderID: ctx.Query("provider_id"),
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, handle)
}

func (r *brokerHttpRoutes) SignMessage(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody resources.SignMessageBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	signature, err := r.svc.SignMessage(ctx, services.SignMessageInput{
		HandleID:    params.ID,
		ProviderID:  requestBody.ProviderID,
		Algorithm:   requestBody.Algorithm,
		MessageType: requestBody.MessageType,
		Message:     requestBody.Message,
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, signature)
}

func (r *brokerHttpRoutes) VerifySignature(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody resources.VerifySignatureBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	validation, err := r.svc.VerifySignature(ctx, services.VerifySignatureInput{
		HandleID:    params.ID,
		ProviderID:  requestBody.ProviderID,
		Algorithm:   requestBody.Algorithm,
		MessageType: requestBody.MessageType,
		Message:     requestBody.Message,
		Signature:   requestBody.Signature,
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, validation)
}

func (r *brokerHttpRoutes) EncryptMessage(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody resources.EncryptMessageBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	encryption, err := r.svc.EncryptMessage(ctx, services.EncryptMessageInput{
		HandleID:   params.ID,
		ProviderID: requestBody.ProviderID,
		Algorithm:  requestBody.Algorithm,
		Plaintext:  requestBody.Plaintext,
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, encryption)
}

func (r *brokerHttpRoutes) DecryptMessage(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody resources.DecryptMessageBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	decryption, err := r.svc.DecryptMessage(ctx, services.DecryptMessageInput{
		HandleID:   params.ID,
		ProviderID: requestBody.ProviderID,
		Algorithm:  requestBody.Algorithm,
		Ciphertext: requestBody.Ciphertext,
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, decryption)
}

func (r *brokerHttpRoutes) ExportPublicKey(ctx *gin.Context) {
	var params handleUriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	export, err := r.svc.ExportPublicKey(ctx, services.ExportPublicKeyInput{
		HandleID:   params.ID,
		ProviderID: ctx.Query("provider_id"),
	})
	if err != nil {
		ctx.JSON(errToHTTPStatus(err), gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, export)
}
